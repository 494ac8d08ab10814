// Package catalog holds the fixed list of products the store sells.
package catalog

import (
	"errors"
	"fmt"
	"os"

	"storefront/internal/models"

	"gopkg.in/yaml.v3"
)

var ErrProductNotFound = errors.New("product not found")

// Catalog is read-only after construction.
type Catalog struct {
	products []models.Product
	index    map[string]int
}

type catalogFile struct {
	Products []models.Product `yaml:"products"`
}

// Default returns the store's built-in product list.
func Default() *Catalog {
	c, _ := New([]models.Product{
		{Name: "Dry amla", Price: 100, Images: []string{"AMLA.jpg"}},
		{Name: "Ragi powder", Price: 100, Images: []string{"RAGI.jpg"}},
		{Name: "Masala tea powder", Price: 100, Images: []string{"MASALA.jpg"}},
		{Name: "Herbal hair growth oil", Price: 80, Images: []string{"HERBAL.jpg"}},
		{Name: "Face pack powder", Price: 100, Images: []string{"FACEPACK.jpg"}},
		{Name: "Rose petal jam", Price: 85, Images: []string{"ROSE.jpg"}},
	})
	return c
}

// New builds a catalog, rejecting empty or duplicate names and negative prices.
func New(products []models.Product) (*Catalog, error) {
	c := &Catalog{
		products: make([]models.Product, 0, len(products)),
		index:    make(map[string]int, len(products)),
	}
	for i, p := range products {
		if p.Name == "" {
			return nil, fmt.Errorf("product %d has no name", i)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("product %q has negative price %d", p.Name, p.Price)
		}
		if _, dup := c.index[p.Name]; dup {
			return nil, fmt.Errorf("duplicate product %q", p.Name)
		}
		c.index[p.Name] = len(c.products)
		c.products = append(c.products, copyProduct(p))
	}
	return c, nil
}

// LoadFile reads a YAML catalog of the form `products: [{name, price, images}]`.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	if len(f.Products) == 0 {
		return nil, fmt.Errorf("catalog %s lists no products", path)
	}

	return New(f.Products)
}

// Lookup returns a copy of the named product.
func (c *Catalog) Lookup(name string) (models.Product, error) {
	i, ok := c.index[name]
	if !ok {
		return models.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, name)
	}
	return copyProduct(c.products[i]), nil
}

// Products returns copies of every product in catalog order.
func (c *Catalog) Products() []models.Product {
	out := make([]models.Product, len(c.products))
	for i, p := range c.products {
		out[i] = copyProduct(p)
	}
	return out
}

func copyProduct(p models.Product) models.Product {
	if p.Images != nil {
		p.Images = append([]string(nil), p.Images...)
	}
	return p
}
