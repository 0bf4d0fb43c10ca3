package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/controller"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/usecase"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/view"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active listings, optionally by rarity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		filter, _ := cmd.Flags().GetString("filter")
		ev := event("catalog", "filter")
		ev.Value = filter
		res, err := s.dispatch(cmd.Context(), ev)
		if err != nil {
			return err
		}
		if flagHTML {
			s.printFragment(res)
			return nil
		}
		s.printProducts(s.core.Catalog.List(s.app.State().Filter), "Нет объявлений")
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search titles, descriptions, cities and rarities",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ev := event("catalog", "search")
		ev.Value = strings.Join(args, " ")
		res, err := s.dispatch(cmd.Context(), ev)
		if err != nil {
			return err
		}
		if flagHTML {
			s.printFragment(res)
			return nil
		}
		s.printProducts(s.core.Catalog.Search(ev.Value).Products, "Ничего не найдено")
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ev := event("catalog", "open")
		ev.ProductID = id
		res, err := s.dispatch(cmd.Context(), ev)
		if err != nil {
			return err
		}
		if flagHTML {
			s.printFragment(res)
			return nil
		}
		p := s.core.Catalog.Get(id)
		fmt.Fprintf(s.out, "#%d %s\n", p.ID, p.Title)
		fmt.Fprintf(s.out, "Цена:       %s\n", s.renderer.FormatPrice(p.Price))
		fmt.Fprintf(s.out, "Редкость:   %s\n", p.Rarity.Label())
		fmt.Fprintf(s.out, "Состояние:  %s\n", p.Condition.Label())
		fmt.Fprintf(s.out, "Статус:     %s\n", p.Status.Label())
		fmt.Fprintf(s.out, "Город:      %s\n", p.City)
		fmt.Fprintf(s.out, "Продавец:   %s %s\n", p.Seller.Name, p.Seller.Telegram)
		fmt.Fprintf(s.out, "Дата:       %s\n", view.FormatDate(p.Date))
		fmt.Fprintf(s.out, "Фото:       %d\n", len(p.Images))
		fmt.Fprintf(s.out, "Ссылка:     %s\n\n%s\n", usecase.ShareLink(s.baseURL, id), p.Description)
		return nil
	},
}

// readPhoto loads a file from disk for the intake buffer. The content type
// is sniffed from the bytes, not the extension.
func readPhoto(path string) (usecase.PhotoFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return usecase.PhotoFile{}, err
	}
	return usecase.PhotoFile{
		Name:        filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a new listing with up to three photos",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		ctx := cmd.Context()

		paths, _ := cmd.Flags().GetStringSlice("photo")
		if len(paths) > 0 {
			add := event("intake", "add")
			for _, path := range paths {
				f, err := readPhoto(path)
				if err != nil {
					return err
				}
				add.Files = append(add.Files, f)
			}
			if _, err := s.dispatch(ctx, add); err != nil {
				return err
			}
		}

		ev := event("catalog", "publish")
		f := cmd.Flags()
		ev.Draft.Title, _ = f.GetString("title")
		ev.Draft.Description, _ = f.GetString("description")
		ev.Draft.Price, _ = f.GetString("price")
		ev.Draft.Rarity, _ = f.GetString("rarity")
		ev.Draft.Condition, _ = f.GetString("condition")
		ev.Draft.City, _ = f.GetString("city")
		ev.Draft.Telegram, _ = f.GetString("telegram")
		_, err = s.dispatch(ctx, ev)
		return err
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit one of your listings; only the given flags change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ev := event("catalog", "edit")
		ev.ProductID = id
		f := cmd.Flags()
		for name, dst := range map[string]**string{
			"title":       &ev.Patch.Title,
			"description": &ev.Patch.Description,
			"price":       &ev.Patch.Price,
			"city":        &ev.Patch.City,
			"status":      &ev.Patch.Status,
		} {
			if f.Changed(name) {
				v, _ := f.GetString(name)
				*dst = &v
			}
		}

		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		_, err = s.dispatch(cmd.Context(), ev)
		return err
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one of your listings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ev := event("catalog", "delete")
		ev.ProductID = id
		ev.Confirmed, _ = cmd.Flags().GetBool("yes")
		_, err = s.dispatch(cmd.Context(), ev)
		return err
	},
}

var contactCmd = &cobra.Command{
	Use:   "contact <id>",
	Short: "Print the seller's Telegram chat link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return linkAction(cmd, args[0], "contact")
	},
}

var shareCmd = &cobra.Command{
	Use:   "share <id>",
	Short: "Print the deep link of a listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return linkAction(cmd, args[0], "share")
	},
}

func linkAction(cmd *cobra.Command, arg, action string) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ev := event("catalog", action)
	ev.ProductID = id
	res, err := s.dispatch(cmd.Context(), ev)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, res.Link)
	return nil
}

var favoriteCmd = &cobra.Command{
	Use:   "favorite <id>",
	Short: "Add a listing to favorites, or remove it if already there",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ev := event("favorites", "toggle")
		ev.ProductID = id
		_, err = s.dispatch(cmd.Context(), ev)
		return err
	},
}

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "List favorite listings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ev := event("nav", "show")
		ev.Value = string(controller.PageFavorites)
		res, err := s.dispatch(cmd.Context(), ev)
		if err != nil {
			return err
		}
		if flagHTML {
			s.printFragment(res)
			return nil
		}
		var products []*domain.Product
		for _, id := range s.core.Favorites.For(cmd.Context(), "").IDs() {
			if p := s.core.Catalog.Get(id); p != nil && p.IsActive() {
				products = append(products, p)
			}
		}
		s.printProducts(products, "Нет избранного")
		return nil
	},
}

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "List your own listings with totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ev := event("nav", "show")
		ev.Value = string(controller.PageMy)
		res, err := s.dispatch(cmd.Context(), ev)
		if err != nil {
			return err
		}
		if flagHTML {
			s.printFragment(res)
			return nil
		}
		u := s.app.State().User
		stats := s.core.Catalog.OwnerStats(u.ID)
		fmt.Fprintf(s.out, "Активные: %d  Проданные: %d  Всего: %d\n", stats.Active, stats.Sold, stats.Total)
		s.printProducts(s.core.Catalog.ByOwner(u.ID), "У вас нет активных объявлений")
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:       "login demo|telegram",
	Short:     "Sign in as the demo user or with Telegram initData",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"demo", "telegram"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var ev controller.Event
		switch args[0] {
		case "demo":
			ev = event("session", "demo")
		case "telegram":
			ev = event("session", "telegram")
			ev.InitData, _ = cmd.Flags().GetString("init-data")
			if ev.InitData == "" {
				return fmt.Errorf("--init-data is required for telegram sign-in")
			}
		default:
			return fmt.Errorf("unknown sign-in method %q", args[0])
		}

		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		if _, err := s.dispatch(cmd.Context(), ev); err != nil {
			return err
		}
		u := s.app.State().User
		fmt.Fprintf(s.out, "Вы вошли как %s (%s)\n", u.DisplayName(), u.ID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ev := event("session", "logout")
		ev.Confirmed, _ = cmd.Flags().GetBool("yes")
		_, err = s.dispatch(cmd.Context(), ev)
		return err
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the profile, or update it with --name, --telegram, --city",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		ctx := cmd.Context()

		f := cmd.Flags()
		if f.Changed("name") || f.Changed("telegram") || f.Changed("city") {
			u := s.app.State().User
			if u == nil {
				return fmt.Errorf("%s", domain.MsgSignInRequired)
			}
			ev := event("session", "profile")
			ev.Profile = controller.ProfileForm{Name: u.FirstName, Telegram: u.Telegram, City: u.City}
			if f.Changed("name") {
				ev.Profile.Name, _ = f.GetString("name")
			}
			if f.Changed("telegram") {
				ev.Profile.Telegram, _ = f.GetString("telegram")
			}
			if f.Changed("city") {
				ev.Profile.City, _ = f.GetString("city")
			}
			if _, err := s.dispatch(ctx, ev); err != nil {
				return err
			}
		}

		ev := event("nav", "show")
		ev.Value = string(controller.PageProfile)
		res, err := s.dispatch(ctx, ev)
		if err != nil {
			return err
		}
		if flagHTML {
			s.printFragment(res)
			return nil
		}
		u := s.app.State().User
		fmt.Fprintf(s.out, "%s @%s\n", u.DisplayName(), u.Username)
		fmt.Fprintf(s.out, "Город:      %s\n", orDash(u.City))
		fmt.Fprintf(s.out, "Telegram:   %s\n", orDash(u.Telegram))
		fmt.Fprintf(s.out, "Избранное:  %d\n", s.core.Favorites.For(ctx, "").Len())
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(listCmd, searchCmd, showCmd, publishCmd, editCmd, deleteCmd,
		contactCmd, shareCmd, favoriteCmd, favoritesCmd, mineCmd, loginCmd, logoutCmd, profileCmd)

	listCmd.Flags().StringP("filter", "f", domain.RarityAll, "Rarity filter (all|main|th|sth|set|special|limited)")

	publishCmd.Flags().StringP("title", "t", "", "Model title")
	publishCmd.Flags().StringP("price", "p", "", "Price in rubles")
	publishCmd.Flags().StringP("description", "d", "", "Description")
	publishCmd.Flags().String("rarity", string(domain.RarityMain), "Rarity (main|th|sth|set|special|limited)")
	publishCmd.Flags().String("condition", string(domain.ConditionNew), "Condition (new|like_new|good|used)")
	publishCmd.Flags().String("city", "", "City, defaults to the profile")
	publishCmd.Flags().String("telegram", "", "Contact @username, defaults to the profile")
	publishCmd.Flags().StringSlice("photo", nil, "Photo file; repeat for up to three")

	editCmd.Flags().StringP("title", "t", "", "New title")
	editCmd.Flags().StringP("price", "p", "", "New price in rubles")
	editCmd.Flags().StringP("description", "d", "", "New description")
	editCmd.Flags().String("city", "", "New city")
	editCmd.Flags().String("status", "", "New status (active|sold)")

	deleteCmd.Flags().BoolP("yes", "y", false, "Confirm deletion")
	logoutCmd.Flags().BoolP("yes", "y", false, "Confirm logout")

	loginCmd.Flags().String("init-data", "", "Signed Telegram WebApp initData")

	profileCmd.Flags().String("name", "", "Display name")
	profileCmd.Flags().String("telegram", "", "Telegram @username")
	profileCmd.Flags().String("city", "", "City")
}
