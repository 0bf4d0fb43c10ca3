package domain

import "time"

// PlaceholderImage stands in for missing or unusable image references.
const PlaceholderImage = "https://images.unsplash.com/photo-1566474595102-2f7606e8b533?w=400&h=300&fit=crop"

// DefaultDescription is stored when a listing is published without one.
const DefaultDescription = "Нет описания"

// DemoUserID identifies the locally fabricated identity.
const DemoUserID = "demo_user_123"

// DemoProducts returns fresh copies of the listings seeded into an empty catalog.
func DemoProducts() []*Product {
	return []*Product{
		{
			ID:          1,
			Title:       "Hot Wheels Ferrari F40 - Красная",
			Price:       2500,
			Description: "Коллекционная модель Ferrari F40 в идеальном состоянии. Упаковка не вскрывалась. Полностью оригинальная.",
			Rarity:      RarityMain,
			Condition:   ConditionNew,
			City:        "Москва",
			Seller:      SellerSnapshot{ID: "seller1", Name: "Иван П.", Avatar: "И", Telegram: "@ivan_hotwheels"},
			Images:      []string{PlaceholderImage},
			Date:        time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
			Status:      StatusActive,
			PhotoCount:  1,
		},
		{
			ID:          2,
			Title:       "Lamborghini Countach STH 2023",
			Price:       8900,
			Description: "Редкий супер треже хант! Идеальное состояние, с сертификатом подлинности. Без дефектов.",
			Rarity:      RaritySTH,
			Condition:   ConditionLikeNew,
			City:        "Санкт-Петербург",
			Seller:      SellerSnapshot{ID: "seller2", Name: "Алексей К.", Avatar: "А", Telegram: "@alexey_collector"},
			Images:      []string{"https://images.unsplash.com/photo-1580273916550-e323be2ae537?w=400&h=300&fit=crop"},
			Date:        time.Date(2024, time.January, 14, 0, 0, 0, 0, time.UTC),
			Status:      StatusActive,
			PhotoCount:  1,
		},
		{
			ID:          3,
			Title:       "Porsche 911 Turbo Treasure Hunt",
			Price:       4200,
			Description: "TH модель 2022 года. В отличном состоянии, колеса не потерты.",
			Rarity:      RarityTH,
			Condition:   ConditionGood,
			City:        "Казань",
			Seller:      SellerSnapshot{ID: "seller3", Name: "Мария С.", Avatar: "М", Telegram: "@maria_cars"},
			Images:      []string{"https://images.unsplash.com/photo-1578662996442-48f60103fc96?w=400&h=300&fit=crop"},
			Date:        time.Date(2024, time.January, 13, 0, 0, 0, 0, time.UTC),
			Status:      StatusActive,
			PhotoCount:  1,
		},
	}
}

// DemoUser returns the identity used when no host user is available.
func DemoUser(now time.Time) *User {
	return &User{
		ID:               DemoUserID,
		Username:         "demo_user",
		FirstName:        "Демо",
		LastName:         "Пользователь",
		Avatar:           "D",
		City:             "Москва",
		Telegram:         "@demo_user",
		RegistrationDate: now,
	}
}
