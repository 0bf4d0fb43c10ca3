// Package view turns catalog state into HTML fragments for the mini-app shell.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/usecase"
)

//go:embed templates/*.html
var templateFS embed.FS

// FavoriteChecker reports favorite membership. A nil checker means nothing
// is favorited.
type FavoriteChecker interface {
	Has(id int64) bool
}

type rarityColor struct {
	bg, fg template.CSS
}

var rarityColors = map[domain.Rarity]rarityColor{
	domain.RarityMain:    {"rgba(0, 212, 255, 0.1)", "#00d4ff"},
	domain.RaritySTH:     {"rgba(255, 215, 0, 0.2)", "#eab308"},
	domain.RarityTH:      {"rgba(255, 107, 107, 0.1)", "#ff6b6b"},
	domain.RaritySet:     {"rgba(147, 51, 234, 0.1)", "#9333ea"},
	domain.RaritySpecial: {"rgba(34, 197, 94, 0.1)", "#22c55e"},
	domain.RarityLimited: {"rgba(234, 179, 8, 0.2)", "#eab308"},
}

var defaultRarityColor = rarityColor{"rgba(255, 255, 255, 0.1)", "#ffffff"}

// Renderer produces view fragments. It is safe for concurrent use.
type Renderer struct {
	tmpl    *template.Template
	policy  *bluemonday.Policy
	printer *message.Printer
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		policy:  bluemonday.StrictPolicy(),
		printer: message.NewPrinter(language.Russian),
	}
	tmpl, err := template.New("view").Funcs(template.FuncMap{
		"text":     r.text,
		"price":    r.FormatPrice,
		"image":    ImageURL,
		"first":    first,
		"date":     FormatDate,
		"rarityBg": func(x domain.Rarity) template.CSS { return colorOf(x).bg },
		"rarityFg": func(x domain.Rarity) template.CSS { return colorOf(x).fg },
		"inc":      func(i int) int { return i + 1 },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse view templates: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

// MustNewRenderer panics when the embedded templates fail to parse.
func MustNewRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// text strips every tag from user-supplied text. The policy output is
// already entity-escaped, so it is handed to the template as HTML.
func (r *Renderer) text(s string) template.HTML {
	return template.HTML(r.policy.Sanitize(s))
}

// FormatPrice renders a price with Russian digit grouping and the ruble sign.
func (r *Renderer) FormatPrice(p int64) string {
	return r.printer.Sprintf("%d", p) + " ₽"
}

// FormatDate renders a listing date the way the mini-app shows it.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02.01.2006")
}

// ImageURL passes http(s) and inline image data through and replaces
// anything else with the placeholder.
func ImageURL(ref string) template.URL {
	switch {
	case strings.HasPrefix(ref, "https://"), strings.HasPrefix(ref, "http://"),
		strings.HasPrefix(ref, "data:image/"):
		return template.URL(ref)
	default:
		return template.URL(domain.PlaceholderImage)
	}
}

func first(images []string) string {
	if len(images) == 0 {
		return ""
	}
	return images[0]
}

func colorOf(r domain.Rarity) rarityColor {
	if c, ok := rarityColors[r]; ok {
		return c
	}
	return defaultRarityColor
}

type card struct {
	P          *domain.Product
	Favorited  bool
	Unfavorite bool
}

type emptyState struct {
	Icon, Title, Hint string
}

type filterTab struct {
	Value  string
	Label  string
	Active bool
}

func cards(products []*domain.Product, favs FavoriteChecker, unfavorite bool) []card {
	out := make([]card, 0, len(products))
	for _, p := range products {
		out = append(out, card{P: p, Favorited: favs != nil && favs.Has(p.ID), Unfavorite: unfavorite})
	}
	return out
}

func (r *Renderer) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Home renders the product grid. Products are expected to be already
// narrowed by filter.
func (r *Renderer) Home(products []*domain.Product, filter string, favs FavoriteChecker) (string, error) {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		filter = domain.RarityAll
	}
	tabs := []filterTab{{Value: domain.RarityAll, Label: "Все", Active: filter == domain.RarityAll}}
	for _, x := range domain.Rarities() {
		tabs = append(tabs, filterTab{Value: string(x), Label: x.Label(), Active: filter == string(x)})
	}

	data := struct {
		Filter string
		Tabs   []filterTab
		Cards  []card
		Empty  *emptyState
	}{Filter: filter, Tabs: tabs, Cards: cards(products, favs, false)}

	if len(products) == 0 {
		if filter == domain.RarityAll {
			data.Empty = &emptyState{Icon: "🚗", Title: "Нет объявлений", Hint: "Станьте первым, кто выставит модель на продажу!"}
		} else {
			data.Empty = &emptyState{Hint: "В этой категории пока нет объявлений"}
		}
	}
	return r.execute("home", data)
}

// Search renders the result list. A cleared search renders an empty section.
func (r *Renderer) Search(res usecase.SearchResult, favs FavoriteChecker) (string, error) {
	data := struct {
		Query   string
		Cleared bool
		Cards   []card
		Empty   *emptyState
	}{Query: res.Query, Cleared: res.Cleared, Cards: cards(res.Products, favs, false)}
	if !res.Cleared && len(res.Products) == 0 {
		data.Empty = &emptyState{Icon: "🔍", Title: "Ничего не найдено", Hint: "Попробуйте изменить поисковый запрос"}
	}
	return r.execute("search", data)
}

// Favorites renders the favorited products that are still active, in the
// order given.
func (r *Renderer) Favorites(products []*domain.Product) (string, error) {
	active := make([]*domain.Product, 0, len(products))
	for _, p := range products {
		if p != nil && p.IsActive() {
			active = append(active, p)
		}
	}
	data := struct {
		Cards []card
		Empty *emptyState
	}{Cards: cards(active, nil, true)}
	if len(active) == 0 {
		data.Empty = &emptyState{Icon: "❤️", Title: "Нет избранного", Hint: "Добавляйте понравившиеся модели в избранное"}
	}
	return r.execute("favorites", data)
}

// ProductPage describes one product detail view.
type ProductPage struct {
	Product    *domain.Product
	Favorited  bool
	Owner      bool
	ContactURL string
	ShareURL   string
}

func (r *Renderer) Product(pg ProductPage) (string, error) {
	if pg.Product == nil {
		return "", domain.ErrProductNotFound
	}
	return r.execute("product", struct {
		P          *domain.Product
		Favorited  bool
		Owner      bool
		ContactURL string
		ShareURL   string
	}{pg.Product, pg.Favorited, pg.Owner, pg.ContactURL, pg.ShareURL})
}

// MyListings renders the owner's listings with their counters.
func (r *Renderer) MyListings(products []*domain.Product, stats domain.OwnerStats) (string, error) {
	data := struct {
		Products []*domain.Product
		Stats    domain.OwnerStats
		Empty    *emptyState
	}{Products: products, Stats: stats}
	if len(products) == 0 {
		data.Empty = &emptyState{Hint: "У вас нет активных объявлений"}
	}
	return r.execute("my", data)
}

// Profile renders the signed-in user's header.
func (r *Renderer) Profile(u *domain.User, favorites int) (string, error) {
	if u == nil {
		return "", domain.ErrUnauthenticated
	}
	return r.execute("profile", struct {
		User      *domain.User
		Name      string
		Avatar    string
		Favorites int
	}{u, u.DisplayName(), domain.Initial(u.FirstName, u.Username, "?"), favorites})
}

// SellPhoto is one buffered photo shown on the publish form.
type SellPhoto struct {
	ID  string
	URL string
}

// SellForm describes the publish form: the draft being edited and the
// photos buffered for it.
type SellForm struct {
	Draft     domain.Draft
	Photos    []SellPhoto
	MaxPhotos int
}

type option struct {
	Value    string
	Label    string
	Selected bool
}

// Sell renders the publish form.
func (r *Renderer) Sell(form SellForm) (string, error) {
	rarities := make([]option, 0, len(domain.Rarities()))
	for _, x := range domain.Rarities() {
		rarities = append(rarities, option{string(x), x.Label(), form.Draft.Rarity == string(x)})
	}
	conditions := make([]option, 0, len(domain.Conditions()))
	for _, c := range domain.Conditions() {
		conditions = append(conditions, option{string(c), c.Label(), form.Draft.Condition == string(c)})
	}
	return r.execute("sell", struct {
		SellForm
		Rarities   []option
		Conditions []option
	}{form, rarities, conditions})
}

// Notice renders a transient notification.
func (r *Renderer) Notice(level, msg string) (string, error) {
	return r.execute("notice", struct{ Level, Message string }{level, msg})
}
