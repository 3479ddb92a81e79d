package main

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-cart/internal/domain/product"
)

// decodeCatalog parses the seed catalog: a JSON array of products using the
// storefront field names (mainImage, subImages).
func decodeCatalog(data []byte) ([]product.Product, error) {
	var products []product.Product
	d := jx.DecodeBytes(data)
	if err := d.Arr(func(d *jx.Decoder) error {
		p, err := decodeProduct(d)
		if err != nil {
			return err
		}
		products = append(products, p)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return products, nil
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "price":
			var n jx.Num
			if n, err = d.Num(); err != nil {
				return err
			}
			p.Price, err = decimal.NewFromString(n.String())
		case "stock":
			p.Stock, err = d.Int()
		case "category":
			p.Category, err = d.Str()
		case "owner":
			p.Owner, err = d.Str()
		case "mainImage":
			p.MainImageURL, err = d.Str()
		case "subImages":
			p.SubImages = []string{}
			err = d.Arr(func(d *jx.Decoder) error {
				s, err := d.Str()
				if err != nil {
					return err
				}
				p.SubImages = append(p.SubImages, s)
				return nil
			})
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return p, err
	}
	if p.ID == "" {
		return p, errors.New("product without id")
	}
	if p.Price.IsNegative() {
		return p, errors.Errorf("product %q: negative price", p.ID)
	}
	if p.Stock < 0 {
		return p, errors.Errorf("product %q: negative stock", p.ID)
	}
	return p, nil
}
