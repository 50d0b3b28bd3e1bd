package compose

import (
	"math/rand"
	"strings"
	"testing"

	"offerbot/internal/model"
)

func TestCustomTemplateSubstitution(t *testing.T) {
	t.Parallel()

	offer := model.Offer{
		Name:  "Fone X",
		Price: 99.90,
		Link:  "http://x",
	}
	got := Message(Input{
		Offer:          offer,
		Mode:           model.ModeCustom,
		CustomTemplate: "{produto} - R$ {preco} - {link}",
	})
	want := "Fone X - R$ 99,90 - http://x"
	if got != want {
		t.Fatalf("Message = %q, want %q", got, want)
	}
}

func TestCustomTemplateReplacesEveryOccurrence(t *testing.T) {
	t.Parallel()

	got := Message(Input{
		Offer:          model.Offer{Name: "Mouse", Price: 10, Link: "http://l"},
		Mode:           model.ModeCustom,
		CustomTemplate: "{produto} {produto} por {preco}! {link} {link}",
	})
	for _, ph := range []string{"{produto}", "{preco}", "{link}"} {
		if strings.Contains(got, ph) {
			t.Fatalf("residual placeholder %s in %q", ph, got)
		}
	}
	if strings.Count(got, "Mouse") != 2 || strings.Count(got, "http://l") != 2 {
		t.Fatalf("not all occurrences substituted: %q", got)
	}
}

func TestCustomModeWithEmptyTemplateFallsBackToStandard(t *testing.T) {
	t.Parallel()

	offer := model.Offer{Name: "Teclado", Price: 150, Link: "http://t", Sales: 10}
	got := Message(Input{
		Offer:          offer,
		Mode:           model.ModeCustom,
		CustomTemplate: "   ",
		Variant:        variants[0],
	})
	if !strings.Contains(got, "Teclado") || !strings.Contains(got, "http://t") {
		t.Fatalf("fallback message missing offer data: %q", got)
	}
}

func TestStandardMessageStructure(t *testing.T) {
	t.Parallel()

	offer := model.Offer{
		Name:         "Monitor Gamer 27",
		Price:        1349.99,
		DiscountRate: 25,
		Rating:       4.8,
		Sales:        2500,
		Link:         "https://s.example/m27",
	}
	got := Message(Input{Offer: offer, Mode: model.ModeStandard, Variant: variants[0]})

	for _, frag := range []string{
		variants[0].Header,
		"⭐ 4.8",
		"🔥 +2.5k vendidos",
		"Monitor Gamer 27",
		"1.349,99",
		"(25% OFF)",
		"https://s.example/m27",
	} {
		if !strings.Contains(got, frag) {
			t.Fatalf("standard message missing %q:\n%s", frag, got)
		}
	}
}

func TestStandardMessageRatingFallback(t *testing.T) {
	t.Parallel()

	got := Message(Input{
		Offer:   model.Offer{Name: "Caixa de Som", Price: 80, Link: "http://c"},
		Mode:    model.ModeStandard,
		Variant: variants[1],
	})
	if !strings.Contains(got, "⭐ 4.5") {
		t.Fatalf("unrated offer should use the default rating: %q", got)
	}
	if strings.Contains(got, "vendidos") {
		t.Fatalf("zero sales should omit the sales fragment: %q", got)
	}
}

func TestPriceSectionDiscountMath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		offer model.Offer
		wants []string
	}{
		{
			"no discount shows plain price",
			model.Offer{Price: 50},
			[]string{"💰 *Valor: R$ 50,00*"},
		},
		{
			"discount reconstructs original price",
			// 75 at 25% off means the original was 100.
			model.Offer{Price: 75, DiscountRate: 25},
			[]string{"De: ~R$ 100,00~", "Por apenas: R$ 75,00", "(25% OFF)"},
		},
		{
			"full discount treated as plain price",
			model.Offer{Price: 10, DiscountRate: 100},
			[]string{"💰 *Valor: R$ 10,00*"},
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := priceSection(tc.offer)
			for _, w := range tc.wants {
				if !strings.Contains(got, w) {
					t.Fatalf("priceSection = %q, missing %q", got, w)
				}
			}
		})
	}
}

func TestFormatPrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   float64
		want string
	}{
		{99.9, "99,90"},
		{1234.5, "1.234,50"},
		{1000000, "1.000.000,00"},
		{0, "0,00"},
	}
	for _, tc := range cases {
		if got := FormatPrice(tc.in); got != tc.want {
			t.Fatalf("FormatPrice(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatSales(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1k"},
		{1234, "1.2k"},
		{25000, "25k"},
	}
	for _, tc := range cases {
		if got := FormatSales(tc.in); got != tc.want {
			t.Fatalf("FormatSales(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPickVariantCoversPool(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		seen[PickVariant(rng).Header] = true
	}
	if len(seen) != len(variants) {
		t.Fatalf("saw %d variants out of %d", len(seen), len(variants))
	}
}
