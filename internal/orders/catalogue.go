package orders

import (
	"strconv"
	"strings"
)

// Category groups catalogue items by service.
type Category string

const (
	CategoryIroning     Category = "ironing"
	CategoryWashing     Category = "washing"
	CategoryDryCleaning Category = "drycleaning"
)

// Item is one priced garment in the catalogue.
type Item struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	// Price is the display price in rupees, either "45" or a range "100-120".
	Price string `json:"price"`
}

// UnitPrice is the charged price in rupees. Ranges are charged at their
// lower bound.
func (i Item) UnitPrice() int64 {
	low, _, _ := strings.Cut(i.Price, "-")
	n, err := strconv.ParseInt(strings.TrimSpace(low), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// DeliveryFee is added to every order, in rupees.
const DeliveryFee int64 = 40

var catalogue = []Item{
	{ID: "shirt-regular", Name: "Shirt (Regular Ironing)", Category: CategoryIroning, Price: "10"},
	{ID: "pants", Name: "Pants/Trousers/Jeans", Category: CategoryIroning, Price: "10"},
	{ID: "tshirts", Name: "T-Shirts", Category: CategoryIroning, Price: "10"},
	{ID: "saree-cotton", Name: "Saree (Cotton)", Category: CategoryIroning, Price: "100"},
	{ID: "saree-silk", Name: "Saree (Silk)", Category: CategoryIroning, Price: "200"},
	{ID: "white-shirt-starch", Name: "White Shirt with Starch", Category: CategoryIroning, Price: "45"},
	{ID: "salwar-2pcs", Name: "Salwar (2 Pcs)", Category: CategoryIroning, Price: "100-120"},
	{ID: "salwar-3pcs", Name: "Salwar (3 Pcs)", Category: CategoryIroning, Price: "120-180"},
	{ID: "kurtha-pyjama", Name: "Kurtha & Pyjama", Category: CategoryIroning, Price: "80-150"},
	{ID: "handkerchiefs", Name: "Handkerchiefs", Category: CategoryWashing, Price: "5-40"},
	{ID: "socks", Name: "Socks", Category: CategoryWashing, Price: "5-40"},
	{ID: "caps", Name: "Caps", Category: CategoryWashing, Price: "5-40"},
	{ID: "shirt-wash", Name: "Shirt (Washing)", Category: CategoryWashing, Price: "15"},
	{ID: "pants-wash", Name: "Pants/Jeans (Washing)", Category: CategoryWashing, Price: "20"},
	{ID: "jacket", Name: "Jacket (Woolen/Leather)", Category: CategoryDryCleaning, Price: "150-700"},
	{ID: "suit", Name: "Suit (2 Piece)", Category: CategoryDryCleaning, Price: "350"},
	{ID: "coat", Name: "Coat", Category: CategoryDryCleaning, Price: "250"},
}

// Catalogue returns every orderable item.
func Catalogue() []Item {
	out := make([]Item, len(catalogue))
	copy(out, catalogue)
	return out
}

func lookup(id string) (Item, bool) {
	for _, it := range catalogue {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}
