package domain

import (
	"strconv"
	"strings"
	"time"
)

// Rarity is the collectible classification of a model.
type Rarity string

const (
	RarityMain    Rarity = "main"
	RaritySTH     Rarity = "sth"
	RarityTH      Rarity = "th"
	RaritySet     Rarity = "set"
	RaritySpecial Rarity = "special"
	RarityLimited Rarity = "limited"
)

// RarityAll is the filter value that disables rarity narrowing.
const RarityAll = "all"

var rarityLabels = map[Rarity]string{
	RarityMain:    "Мейн",
	RaritySTH:     "STH",
	RarityTH:      "TH",
	RaritySet:     "Набор",
	RaritySpecial: "Спецки",
	RarityLimited: "Лимитки",
}

// Rarities lists every rarity in display order.
func Rarities() []Rarity {
	return []Rarity{RarityMain, RaritySTH, RarityTH, RaritySet, RaritySpecial, RarityLimited}
}

// ParseRarity validates a rarity tag. Empty input is not a valid tag.
func ParseRarity(s string) (Rarity, error) {
	r := Rarity(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := rarityLabels[r]; !ok {
		return "", NewValidationError(FieldRarity, MsgUnknownRarity)
	}
	return r, nil
}

// Label returns the human-readable rarity name, or the raw tag when unknown.
func (r Rarity) Label() string {
	if l, ok := rarityLabels[r]; ok {
		return l
	}
	return string(r)
}

// Condition describes the physical state of a model.
type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionGood    Condition = "good"
	ConditionUsed    Condition = "used"
)

var conditionLabels = map[Condition]string{
	ConditionNew:     "Новый",
	ConditionLikeNew: "Как новый",
	ConditionGood:    "Хорошее",
	ConditionUsed:    "Б/у",
}

// Conditions lists every condition in form order.
func Conditions() []Condition {
	return []Condition{ConditionNew, ConditionLikeNew, ConditionGood, ConditionUsed}
}

func ParseCondition(s string) (Condition, error) {
	c := Condition(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := conditionLabels[c]; !ok {
		return "", NewValidationError(FieldCondition, MsgUnknownCondition)
	}
	return c, nil
}

func (c Condition) Label() string {
	if l, ok := conditionLabels[c]; ok {
		return l
	}
	return string(c)
}

// ProductStatus is the lifecycle state of a listing.
type ProductStatus string

const (
	StatusActive ProductStatus = "active"
	StatusSold   ProductStatus = "sold"
)

func ParseStatus(s string) (ProductStatus, error) {
	switch st := ProductStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusSold:
		return st, nil
	default:
		return "", NewValidationError(FieldStatus, MsgUnknownStatus)
	}
}

func (s ProductStatus) Label() string {
	if s == StatusActive {
		return "Активен"
	}
	return "Продано"
}

// User is the resolved identity of the current session.
type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Avatar           string    `json:"avatar"`
	City             string    `json:"city"`
	Telegram         string    `json:"telegram,omitempty"`
	RegistrationDate time.Time `json:"registration_date"`
}

// DisplayName is the full name, falling back to a generic label.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return "Пользователь"
	}
	return name
}

// Initial returns the first letter of the first name, then of the username.
func Initial(firstName, username, fallback string) string {
	for _, s := range []string{firstName, username} {
		for _, r := range strings.TrimSpace(s) {
			return string(r)
		}
	}
	return fallback
}

// SellerSnapshot is copied from the seller at publish time and never
// re-linked to the live user record.
type SellerSnapshot struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Telegram string `json:"telegram"`
}

type Product struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Price       int64          `json:"price"`
	Description string         `json:"description"`
	Rarity      Rarity         `json:"rarity"`
	Condition   Condition      `json:"condition"`
	City        string         `json:"city"`
	Seller      SellerSnapshot `json:"seller"`
	Images      []string       `json:"images,omitempty"`
	Date        time.Time      `json:"date"`
	Status      ProductStatus  `json:"status"`
	HasPhotos   bool           `json:"hasPhotos"`
	PhotoCount  int            `json:"photoCount"`
}

// Clone returns a deep copy safe to hand out of the catalog.
func (p *Product) Clone() *Product {
	c := *p
	if p.Images != nil {
		c.Images = append([]string(nil), p.Images...)
	}
	return &c
}

// IsActive reports whether the listing is visible in public views.
func (p *Product) IsActive() bool {
	return p.Status == StatusActive
}

// MatchesQuery does a lowercase substring match against the searchable fields.
// The query must already be lowercased.
func (p *Product) MatchesQuery(q string) bool {
	for _, field := range []string{p.Title, p.Description, p.City, p.Rarity.Label()} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Draft is the raw publish form. Price is kept as entered so that parsing
// failures can be rejected instead of coerced.
type Draft struct {
	Title       string
	Description string
	Price       string
	Rarity      string
	Condition   string
	City        string
	Telegram    string
}

// WithDefaults fills the fields a fresh publish form starts with: the
// seller's city, the main line and a new condition.
func (d Draft) WithDefaults(seller *User) Draft {
	if strings.TrimSpace(d.City) == "" && seller != nil {
		d.City = seller.City
	}
	if strings.TrimSpace(d.Rarity) == "" {
		d.Rarity = string(RarityMain)
	}
	if strings.TrimSpace(d.Condition) == "" {
		d.Condition = string(ConditionNew)
	}
	return d
}

// Patch carries edits to an existing listing. Nil fields are left unchanged.
type Patch struct {
	Title       *string
	Description *string
	Price       *string
	City        *string
	Status      *string
}

// OwnerStats summarizes a seller's listings for the profile view.
type OwnerStats struct {
	Active int `json:"active"`
	Sold   int `json:"sold"`
	Total  int `json:"total"`
}

// PhotoKey builds the blob-map key of the index-th photo of a product.
func PhotoKey(productID int64, index int) string {
	return strconv.FormatInt(productID, 10) + "_" + strconv.Itoa(index)
}
