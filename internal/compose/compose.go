// Package compose builds the promotional message body for one offer.
//
// Message is a pure function: it never mutates its input and is deterministic
// given its inputs. Any randomness (the copy variant) is supplied by the
// caller.
package compose

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"offerbot/internal/model"
)

// Input carries everything needed to compose one message.
type Input struct {
	Offer          model.Offer
	Mode           model.MessageMode
	CustomTemplate string
	// Variant is only used in standard mode.
	Variant Variant
}

// Message returns the final text body for the offer.
func Message(in Input) string {
	if in.Mode == model.ModeCustom && strings.TrimSpace(in.CustomTemplate) != "" {
		return customMessage(in.Offer, in.CustomTemplate)
	}
	return standardMessage(in.Offer, in.Variant)
}

// customMessage substitutes every occurrence of the supported placeholders.
func customMessage(o model.Offer, tmpl string) string {
	r := strings.NewReplacer(
		"{produto}", o.Name,
		"{preco}", FormatPrice(o.Price),
		"{link}", o.Link,
	)
	return r.Replace(tmpl)
}

func standardMessage(o model.Offer, v Variant) string {
	rating := "⭐ 4.5"
	if o.Rating > 0 {
		rating = fmt.Sprintf("⭐ %.1f", o.Rating)
	}

	sales := ""
	if o.Sales > 0 {
		sales = " | 🔥 +" + FormatSales(o.Sales) + " vendidos"
	}

	var b strings.Builder
	b.WriteString(v.Header)
	b.WriteString("\n\n")
	b.WriteString(rating)
	b.WriteString(sales)
	b.WriteString("\n\n🛍️ *")
	b.WriteString(strings.TrimSpace(o.Name))
	b.WriteString("*\n\n")
	b.WriteString(v.Body)
	b.WriteString("\n\n")
	b.WriteString(priceSection(o))
	b.WriteString("\n\n🚀 *")
	b.WriteString(v.CTA)
	b.WriteString(":*\n")
	b.WriteString(o.Link)
	b.WriteString("\n\n---\n_⚠️ Preços sujeitos a alteração conforme as regras da plataforma._")
	return b.String()
}

// priceSection reconstructs the pre-discount price from the discount rate the
// API reports, when there is one.
func priceSection(o model.Offer) string {
	price := FormatPrice(o.Price)
	if o.DiscountRate <= 0 || o.DiscountRate >= 100 {
		return "💰 *Valor: R$ " + price + "*"
	}
	original := o.Price / (1 - float64(o.DiscountRate)/100)
	return fmt.Sprintf("❌ De: ~R$ %s~\n✅ *Por apenas: R$ %s*\n📉 *(%d%% OFF)*",
		FormatPrice(original), price, o.DiscountRate)
}

var ptBR = message.NewPrinter(language.BrazilianPortuguese)

// FormatPrice renders a value the way Brazilian customers read prices:
// two decimals, comma decimal separator, dot thousands separator.
func FormatPrice(v float64) string {
	return ptBR.Sprintf("%.2f", v)
}

// FormatSales compresses a sales count into k-notation: 1234 -> "1.2k".
func FormatSales(n int) string {
	if n < 1000 {
		return strconv.Itoa(n)
	}
	s := strconv.FormatFloat(float64(n)/1000, 'f', 1, 64)
	s = strings.TrimSuffix(s, ".0")
	return s + "k"
}
