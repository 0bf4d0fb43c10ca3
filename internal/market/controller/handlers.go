package controller

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/usecase"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/view"
)

// render draws the current page.
func (a *App) render(ctx context.Context) (Result, error) {
	r := a.deps.Renderer
	res := Result{Page: a.state.Page}

	var (
		html string
		err  error
	)
	switch a.state.Page {
	case PageSearch:
		html, err = r.Search(a.deps.Catalog.Search(a.state.Query), a.ledger(ctx))
	case PageFavorites:
		html, err = r.Favorites(a.favoriteProducts(ctx))
	case PageMy:
		u, uerr := a.requireUser()
		if uerr != nil {
			return res, uerr
		}
		html, err = r.MyListings(a.deps.Catalog.ByOwner(u.ID), a.deps.Catalog.OwnerStats(u.ID))
	case PageProfile:
		u, uerr := a.requireUser()
		if uerr != nil {
			return res, uerr
		}
		html, err = r.Profile(u, a.ledger(ctx).Len())
	case PageProduct:
		html, err = r.Product(a.productPage(ctx, a.state.OpenProduct))
	case PageSell:
		form, ferr := a.sellForm(ctx)
		if ferr != nil {
			return res, ferr
		}
		html, err = r.Sell(form)
	default:
		html, err = r.Home(a.deps.Catalog.List(a.state.Filter), a.state.Filter, a.ledger(ctx))
	}
	if err != nil {
		return res, err
	}
	res.Fragment = html
	return res, nil
}

func (a *App) favoriteProducts(ctx context.Context) []*domain.Product {
	ids := a.ledger(ctx).IDs()
	out := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		if p := a.deps.Catalog.Get(id); p != nil {
			out = append(out, p)
		}
	}
	return out
}

// sellForm prefills a fresh draft from the signed-in user and lists the
// buffered photos in upload order.
func (a *App) sellForm(ctx context.Context) (view.SellForm, error) {
	form := view.SellForm{Draft: domain.Draft{}.WithDefaults(a.state.User), MaxPhotos: usecase.MaxPhotos}
	if u := a.state.User; u != nil {
		form.Draft.Telegram = u.Telegram
	}
	files := a.deps.Intake.Files()
	previews, err := a.deps.Intake.Previews(ctx)
	if err != nil {
		return form, err
	}
	for _, f := range files {
		form.Photos = append(form.Photos, view.SellPhoto{ID: f.ID, URL: previews[f.ID]})
	}
	return form, nil
}

func (a *App) productPage(ctx context.Context, id int64) view.ProductPage {
	p := a.deps.Catalog.Get(id)
	pg := view.ProductPage{Product: p, ShareURL: usecase.ShareLink(a.deps.BaseURL, id)}
	if p == nil {
		return pg
	}
	pg.Favorited = a.ledger(ctx).Has(id)
	if u := a.state.User; u != nil {
		pg.Owner = a.deps.Catalog.CheckOwner(id, u.ID) == nil
	}
	if link, err := a.deps.Catalog.ContactLink(id); err == nil {
		pg.ContactURL = link
	}
	return pg
}

// goTo switches page. The previous page is kept when the new one cannot be
// drawn. Leaving the publish form drops its photo buffer.
func (a *App) goTo(ctx context.Context, page Page) (Result, error) {
	prev := a.state.Page
	a.state.Page = page
	res, err := a.render(ctx)
	if err != nil {
		a.state.Page = prev
		return res, err
	}
	if prev == PageSell && page != PageSell {
		a.deps.Intake.Clear()
	}
	return res, nil
}

// start restores a persisted identity and loads the catalog unless the
// caller already did.
func (a *App) start(ctx context.Context, _ Event) (Result, error) {
	u, err := a.deps.Session.Restore(ctx)
	if err != nil {
		a.logger.Warn("session not restored", zap.Error(err))
	}
	a.state.User = u
	if !a.deps.Catalog.Loaded() {
		if err := a.deps.Catalog.Load(ctx); err != nil {
			return Result{}, err
		}
	}
	return a.goTo(ctx, PageHome)
}

func (a *App) show(ctx context.Context, ev Event) (Result, error) {
	page, ok := ParsePage(ev.Value)
	if !ok {
		page = PageHome
	}
	if page == PageProduct && ev.ProductID != 0 {
		a.state.OpenProduct = ev.ProductID
	}
	return a.goTo(ctx, page)
}

func (a *App) signInDemo(ctx context.Context, _ Event) (Result, error) {
	u, err := a.deps.Session.SignInDemo(ctx)
	if err != nil {
		return Result{}, err
	}
	a.state.User = u
	return a.goTo(ctx, PageHome)
}

func (a *App) signInTelegram(ctx context.Context, ev Event) (Result, error) {
	if a.deps.Verifier == nil {
		return Result{}, domain.ErrInvalidInitData
	}
	host, err := a.deps.Verifier.Verify(ev.InitData)
	if err != nil {
		return Result{}, err
	}
	u, err := a.deps.Session.SignInWithHost(ctx, host)
	if err != nil {
		return Result{}, err
	}
	a.state.User = u
	return a.goTo(ctx, PageHome)
}

func (a *App) logout(ctx context.Context, ev Event) (Result, error) {
	if !ev.Confirmed {
		return Result{}, domain.ErrConfirmationRequired
	}
	if err := a.deps.Session.Logout(ctx); err != nil {
		return Result{}, err
	}
	a.state.User = nil
	a.state.OpenProduct = 0
	a.deps.Intake.Clear()
	return a.goTo(ctx, PageHome)
}

func (a *App) updateProfile(ctx context.Context, ev Event) (Result, error) {
	u, err := a.deps.Session.UpdateProfile(ctx, ev.Profile.Name, ev.Profile.Telegram, ev.Profile.City)
	if err != nil {
		return Result{}, err
	}
	a.state.User = u
	res, err := a.goTo(ctx, PageProfile)
	if err != nil {
		return res, err
	}
	return success(res, "Профиль обновлен"), nil
}

func (a *App) filter(ctx context.Context, ev Event) (Result, error) {
	f := strings.ToLower(strings.TrimSpace(ev.Value))
	if f == "" {
		f = domain.RarityAll
	}
	a.state.Filter = f
	return a.goTo(ctx, PageHome)
}

func (a *App) search(ctx context.Context, ev Event) (Result, error) {
	a.state.Query = ev.Value
	return a.goTo(ctx, PageSearch)
}

func (a *App) open(ctx context.Context, ev Event) (Result, error) {
	if a.deps.Catalog.Get(ev.ProductID) == nil {
		return Result{}, domain.ErrProductNotFound
	}
	a.state.OpenProduct = ev.ProductID
	return a.goTo(ctx, PageProduct)
}

// publish lists the draft with the buffered photos, then clears the buffer
// and returns to the unfiltered home grid.
func (a *App) publish(ctx context.Context, ev Event) (Result, error) {
	u, err := a.requireUser()
	if err != nil {
		return Result{}, err
	}
	if _, err := a.deps.Catalog.Publish(ctx, ev.Draft.WithDefaults(u), u, a.deps.Intake); err != nil {
		return Result{}, err
	}
	a.deps.Intake.Clear()
	a.state.Filter = domain.RarityAll
	res, err := a.goTo(ctx, PageHome)
	if err != nil {
		return res, err
	}
	return success(res, "Товар успешно опубликован!"), nil
}

func (a *App) checkOwner(id int64) error {
	u, err := a.requireUser()
	if err != nil {
		return err
	}
	return a.deps.Catalog.CheckOwner(id, u.ID)
}

// edit and remove treat an unknown id as already gone: the page is redrawn
// without a notice.
func (a *App) edit(ctx context.Context, ev Event) (Result, error) {
	if a.deps.Catalog.Get(ev.ProductID) == nil {
		return a.render(ctx)
	}
	if err := a.checkOwner(ev.ProductID); err != nil {
		return Result{}, err
	}
	if _, err := a.deps.Catalog.Update(ctx, ev.ProductID, ev.Patch); err != nil {
		return Result{}, err
	}
	res, err := a.goTo(ctx, PageMy)
	if err != nil {
		return res, err
	}
	return success(res, "Изменения сохранены!"), nil
}

func (a *App) remove(ctx context.Context, ev Event) (Result, error) {
	if !ev.Confirmed {
		return Result{}, domain.ErrConfirmationRequired
	}
	if a.deps.Catalog.Get(ev.ProductID) == nil {
		return a.render(ctx)
	}
	if err := a.checkOwner(ev.ProductID); err != nil {
		return Result{}, err
	}
	if _, err := a.deps.Catalog.Remove(ctx, ev.ProductID); err != nil {
		return Result{}, err
	}
	if a.state.OpenProduct == ev.ProductID {
		a.state.OpenProduct = 0
	}
	res, err := a.goTo(ctx, PageMy)
	if err != nil {
		return res, err
	}
	return success(res, "Объявление удалено"), nil
}

func (a *App) contact(ctx context.Context, ev Event) (Result, error) {
	link, err := a.deps.Catalog.ContactLink(ev.ProductID)
	if err != nil {
		return Result{}, err
	}
	res, err := a.render(ctx)
	if err != nil {
		return res, err
	}
	res.Link = link
	return success(res, "Открывается чат с "+a.deps.Catalog.Get(ev.ProductID).Seller.Name), nil
}

func (a *App) share(ctx context.Context, ev Event) (Result, error) {
	if a.deps.Catalog.Get(ev.ProductID) == nil {
		return Result{}, domain.ErrProductNotFound
	}
	res, err := a.render(ctx)
	if err != nil {
		return res, err
	}
	res.Link = usecase.ShareLink(a.deps.BaseURL, ev.ProductID)
	return success(res, "Ссылка скопирована в буфер обмена!"), nil
}

func (a *App) toggleFavorite(ctx context.Context, ev Event) (Result, error) {
	favorited, err := a.deps.Favorites.Toggle(ctx, a.deps.Scope, ev.ProductID)
	if err != nil {
		return Result{}, err
	}
	res, err := a.render(ctx)
	if err != nil {
		return res, err
	}
	if favorited {
		return success(res, "Добавлено в избранное!"), nil
	}
	return success(res, "Удалено из избранного"), nil
}

// addPhotos buffers the accepted files and opens the publish form. Every
// rejected file gets its own warning; the rest of the batch is kept.
func (a *App) addPhotos(ctx context.Context, ev Event) (Result, error) {
	_, rejected := a.deps.Intake.AddBatch(ev.Files)
	res, err := a.goTo(ctx, PageSell)
	if err != nil {
		return res, err
	}
	msgs := make([]string, 0, len(rejected))
	for _, r := range rejected {
		a.logger.Info("photo rejected", zap.String("file", r.File), zap.String("reason", string(r.Reason)))
		msgs = append(msgs, domain.UserMessage(r))
	}
	return warn(res, msgs...), nil
}

func (a *App) removePhoto(ctx context.Context, ev Event) (Result, error) {
	a.deps.Intake.Remove(ev.Index)
	return a.render(ctx)
}

func (a *App) clearPhotos(ctx context.Context, _ Event) (Result, error) {
	a.deps.Intake.Clear()
	return a.render(ctx)
}
