package lookup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Item is one listing returned by an activity search.
type Item struct {
	ActivityID int64           `json:"activitygoods_id"`
	Title      string          `json:"title,omitempty"`
	ShopName   string          `json:"shop_name,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"sy_store"`
}

// SearchResult is the decoded payload of a successful search or listing.
type SearchResult struct {
	Items []Item `json:"items"`

	// Unpriced holds the ids of listings dropped because their price
	// could not be read.
	Unpriced []int64 `json:"unpriced,omitempty"`
}

// IsUnpriced reports whether activityID was returned without a readable
// price.
func (r *SearchResult) IsUnpriced(activityID int64) bool {
	if r == nil {
		return false
	}
	for _, id := range r.Unpriced {
		if id == activityID {
			return true
		}
	}
	return false
}

// Detail is one listing as returned by the detail endpoint.
type Detail struct {
	ActivityID    int64           `json:"activitygoods_id"`
	Title         string          `json:"title"`
	Price         decimal.Decimal `json:"price"`
	OriginalPrice decimal.Decimal `json:"y_price"`
	Stock         int             `json:"sy_store"`
	TotalStock    int             `json:"store"`
	SellText      string          `json:"is_sell_text,omitempty"`
	Description   string          `json:"description,omitempty"`
	Images        []string        `json:"images,omitempty"`
	Shop          Shop            `json:"shop"`
}

// Shop is the merchant behind a listing.
type Shop struct {
	Name    string `json:"shop_name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Lon     string `json:"lon,omitempty"`
	Lat     string `json:"lat,omitempty"`
}

// Find returns the item with the given activity id.
func (r *SearchResult) Find(activityID int64) (Item, bool) {
	if r == nil {
		return Item{}, false
	}
	for _, it := range r.Items {
		if it.ActivityID == activityID {
			return it, true
		}
	}
	return Item{}, false
}

// envelope is the upstream response wrapper. code == 1 means success.
type envelope struct {
	Code flexInt         `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// rawItem mirrors Item with lenient field types: upstream sends ids,
// prices and stock either as JSON numbers or as strings.
type rawItem struct {
	ActivityID flexInt         `json:"activitygoods_id"`
	Title      string          `json:"title"`
	ShopName   string          `json:"shop_name"`
	Price      json.RawMessage `json:"price"`
	Stock      flexInt         `json:"sy_store"`
}

// item converts r. ok is false when the price cannot be read.
func (r rawItem) item() (Item, bool) {
	price, err := parsePrice(r.Price)
	if err != nil {
		return Item{}, false
	}
	return Item{
		ActivityID: int64(r.ActivityID),
		Title:      r.Title,
		ShopName:   r.ShopName,
		Price:      price,
		Stock:      int(r.Stock),
	}, true
}

// rawDetail mirrors the detail payload with lenient field types.
type rawDetail struct {
	ID            flexInt         `json:"id"`
	Title         string          `json:"title"`
	Price         json.RawMessage `json:"price"`
	OriginalPrice json.RawMessage `json:"y_price"`
	Stock         flexInt         `json:"sy_store"`
	TotalStock    flexInt         `json:"store"`
	SellText      string          `json:"is_sell_text"`
	Goods         struct {
		Content  string   `json:"content"`
		ImageURL []string `json:"image_url"`
	} `json:"goods"`
	Shop struct {
		Name    string `json:"shop_name"`
		Address string `json:"address"`
		Phone   string `json:"phone"`
		Lon     string `json:"lon"`
		Lat     string `json:"lat"`
	} `json:"shop"`
}

func (r rawDetail) detail() (*Detail, error) {
	price, err := parsePrice(r.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: activity %d: %w", ErrUpstream, r.ID, err)
	}
	// The list price is informative only; a blank one reads as zero.
	original, _ := parsePrice(r.OriginalPrice)

	return &Detail{
		ActivityID:    int64(r.ID),
		Title:         r.Title,
		Price:         price,
		OriginalPrice: original,
		Stock:         int(r.Stock),
		TotalStock:    int(r.TotalStock),
		SellText:      r.SellText,
		Description:   r.Goods.Content,
		Images:        r.Goods.ImageURL,
		Shop: Shop{
			Name:    r.Shop.Name,
			Address: r.Shop.Address,
			Phone:   r.Shop.Phone,
			Lon:     r.Shop.Lon,
			Lat:     r.Shop.Lat,
		},
	}, nil
}

// parsePrice reads a price sent as a JSON number or a numeric string.
func parsePrice(b json.RawMessage) (decimal.Decimal, error) {
	raw := bytes.Trim(bytes.TrimSpace(b), `"`)
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %s", b)
	}
	return d, nil
}

// flexInt decodes 3, "3" and "" (as zero).
type flexInt int64

func (n *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		b = []byte(s)
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		// Some fields come back as "3.0".
		f, ferr := strconv.ParseFloat(string(b), 64)
		if ferr != nil {
			return fmt.Errorf("invalid integer %s: %w", b, err)
		}
		v = int64(f)
	}
	*n = flexInt(v)
	return nil
}
