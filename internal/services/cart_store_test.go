package services

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoshop/storefront/internal/domain"
)

func line(id, size, color string, price float64, qty int) domain.CartLineItem {
	return domain.CartLineItem{ID: id, Name: id, Price: price, Image: id + ".png", Size: size, Color: color, Quantity: qty}
}

func TestCartStoreAddMergesByLineKey(t *testing.T) {
	cart := NewCartStore()
	cart.AddItem(line("a", "", "", 10, 1))
	cart.AddItem(line("a", "", "", 10, 2))

	items := cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, 3, cart.TotalItems())
	assert.True(t, cart.TotalPrice().Equal(decimal.NewFromInt(30)))
}

func TestCartStoreAddDefaultsQuantity(t *testing.T) {
	cart := NewCartStore()
	cart.AddItem(line("a", "M", "", 10, 0))
	cart.AddItem(line("a", "M", "", 10, -4))

	items := cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestCartStoreKeepsFrozenPrice(t *testing.T) {
	cart := NewCartStore()
	cart.AddItem(line("a", "", "", 10, 1))
	cart.AddItem(line("a", "", "", 99, 1))

	items := cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, float64(10), items[0].Price)
	assert.Equal(t, "20", cart.TotalPrice().String())
}

func TestCartStoreRemove(t *testing.T) {
	cart := NewCartStore()
	cart.AddItem(line("tee", "M", "#f00", 45, 1))
	cart.AddItem(line("tee", "M", "#00f", 45, 1))
	cart.AddItem(line("cap", "", "", 32, 1))

	cart.RemoveLine(domain.LineKey{ID: "tee", Size: "M", Color: "#f00"})
	require.Len(t, cart.Items(), 2)

	cart.RemoveItem("tee")
	items := cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "cap", items[0].ID)

	cart.RemoveItem("unknown")
	cart.RemoveLine(domain.LineKey{ID: "cap", Size: "XL"})
	assert.Len(t, cart.Items(), 1)
}

func TestCartStoreUpdateQuantity(t *testing.T) {
	cart := NewCartStore()
	cart.AddItem(line("tee", "M", "", 45, 1))
	cart.AddItem(line("tee", "L", "", 45, 1))

	cart.UpdateQuantity("tee", 4)
	assert.Equal(t, 8, cart.TotalItems())

	cart.UpdateLineQuantity(domain.LineKey{ID: "tee", Size: "L"}, 1)
	assert.Equal(t, 5, cart.TotalItems())

	cart.UpdateLineQuantity(domain.LineKey{ID: "tee", Size: "L"}, 0)
	require.Len(t, cart.Items(), 1)

	cart.UpdateQuantity("tee", -1)
	assert.Empty(t, cart.Items())
	assert.True(t, cart.TotalPrice().IsZero())

	cart.UpdateQuantity("unknown", 3)
	assert.Empty(t, cart.Items())
}

func TestCartStoreVisibilityAndClear(t *testing.T) {
	cart := NewCartStore()
	assert.False(t, cart.IsOpen())
	cart.OpenCart()
	assert.True(t, cart.IsOpen())
	cart.AddItem(line("a", "", "", 1, 1))
	cart.Clear()
	assert.Empty(t, cart.Items())
	assert.True(t, cart.IsOpen())
	cart.CloseCart()
	assert.False(t, cart.IsOpen())
}

func TestCartStoreItemsReturnsCopy(t *testing.T) {
	cart := NewCartStore()
	cart.AddItem(line("a", "", "", 1, 1))
	items := cart.Items()
	items[0].Quantity = 100
	assert.Equal(t, 1, cart.TotalItems())
}

func TestCartStoreDrain(t *testing.T) {
	cart := NewCartStore()
	cart.AddItem(line("a", "", "", 2.5, 2))
	snapshot := cart.Drain()
	assert.Equal(t, 2, snapshot.TotalItems)
	assert.Equal(t, "5", snapshot.TotalPrice.String())
	assert.Empty(t, cart.Items())
}

// Totals always equal the sums over the resulting lines, whatever the operation sequence.
func TestCartStoreTotalsMatchLines(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := []string{"a", "b", "c"}
	sizes := []string{"", "S", "M"}
	cart := NewCartStore()

	for i := 0; i < 500; i++ {
		id := ids[rng.Intn(len(ids))]
		switch rng.Intn(4) {
		case 0, 1:
			cart.AddItem(line(id, sizes[rng.Intn(len(sizes))], "", float64(rng.Intn(10000))/100, rng.Intn(4)))
		case 2:
			cart.UpdateQuantity(id, rng.Intn(6)-2)
		case 3:
			cart.RemoveItem(id)
		}

		snapshot := cart.Snapshot()
		count := 0
		total := decimal.Zero
		for _, item := range snapshot.Items {
			require.Greater(t, item.Quantity, 0)
			count += item.Quantity
			total = total.Add(decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
		require.Equal(t, count, snapshot.TotalItems)
		require.True(t, total.Equal(snapshot.TotalPrice))
		require.Equal(t, count, cart.TotalItems())
	}
}

func TestCartStoreConcurrentAdds(t *testing.T) {
	cart := NewCartStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cart.AddItem(line("a", "M", "", 10, 1))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, cart.TotalItems())
	assert.Len(t, cart.Items(), 1)
}

func TestCartStoreQuantityIsCapped(t *testing.T) {
	cart := NewCartStore()
	cart.AddItem(line("a", "M", "", 10, math.MaxInt))
	cart.AddItem(line("a", "M", "", 10, 1))

	items := cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, MaxLineQuantity, items[0].Quantity)
	assert.Equal(t, MaxLineQuantity, cart.TotalItems())
	assert.True(t, cart.TotalPrice().Equal(decimal.NewFromInt(990)))

	cart.UpdateQuantity("a", math.MaxInt)
	assert.Equal(t, MaxLineQuantity, cart.Items()[0].Quantity)
	cart.UpdateLineQuantity(domain.LineKey{ID: "a", Size: "M"}, 150)
	assert.Equal(t, MaxLineQuantity, cart.Items()[0].Quantity)
}

func TestCartStoreNormalizesIDs(t *testing.T) {
	cart := NewCartStore()
	cart.AddItem(line(" a ", "", "", 10, 1))
	cart.AddItem(line("b", "", "", 5, 1))

	cart.UpdateQuantity(" a", 4)
	require.Len(t, cart.Items(), 2)
	assert.Equal(t, "a", cart.Items()[0].ID)
	assert.Equal(t, 4, cart.Items()[0].Quantity)

	cart.RemoveItem("a ")
	require.Len(t, cart.Items(), 1)
	assert.Equal(t, "b", cart.Items()[0].ID)
}
