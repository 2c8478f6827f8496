package scraper

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"github.com/mcelebi/qrtransfer/internal/fuzzy"
	"github.com/mcelebi/qrtransfer/internal/model"
)

const (
	halkbankSender  = "halkbank.bilgilendirme@bilgi.halkbank.com.tr"
	halkbankSubject = "HESABA GELEN FAST BİLGİLENDİRME FORMU"

	halkbankDateLayout = "02.01.2006 15.04"
)

// The notification is a fixed nested-table layout; selDetail addresses the
// detail block every field selector hangs off. Positional and brittle, but
// the template is stable and this contract mirrors it exactly.
const selDetail = "body > table:nth-of-type(1) > tbody > tr > td:nth-of-type(1) > table > tbody > tr > td:nth-of-type(2) > table > tbody > tr > td > table:nth-of-type(1) > tbody > tr:nth-of-type(2) > td > table > tbody > tr > td:nth-of-type(2) > table > tbody"

// Halkbank extracts incoming-FAST notification mail.
type Halkbank struct{}

func NewHalkbank() *Halkbank {
	return &Halkbank{}
}

func (h *Halkbank) Match(from, subject string) bool {
	return from == halkbankSender && fuzzy.Contains(halkbankSubject, subject)
}

func (h *Halkbank) Extract(htmlBody string) (model.PaymentNotice, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return model.PaymentNotice{}, fmt.Errorf("halkbank: parse html: %w", err)
	}

	recipient := func(row, col int) string {
		return cellText(doc, fmt.Sprintf(
			"%s > tr:nth-of-type(2) > td > table > tbody > tr:nth-of-type(%d) > td:nth-of-type(%d)",
			selDetail, row, col))
	}
	sender := func(row, col int) string {
		return cellText(doc, fmt.Sprintf(
			"%s > tr:nth-of-type(3) > td > table > tbody > tr:nth-of-type(%d) > td:nth-of-type(%d)",
			selDetail, row, col))
	}

	notice := model.PaymentNotice{
		RecipientName:     cellText(doc, selDetail+" > tr:nth-of-type(1) > td:nth-of-type(1)"),
		RecipientBankName: "HalkBank",
		RecipientBranch:   recipient(1, 3),
		CurrencyCode:      recipient(2, 3),
		RecipientIBAN:     strings.ReplaceAll(recipient(3, 3), " ", ""),
		SenderBankName:    sender(1, 3),
		SenderIBAN:        sender(2, 3),
		SenderName:        sender(3, 3),
		TransactionCode:   sender(4, 3),
		Description:       sender(5, 3),
		AmountWords:       sender(6, 3),
	}

	date := cellText(doc, selDetail+" > tr:nth-of-type(1) > td:nth-of-type(3)")
	notice.TransactionDate, err = time.Parse(halkbankDateLayout, date)
	if err != nil {
		return model.PaymentNotice{}, fmt.Errorf("halkbank: transaction date %q: %w", date, err)
	}

	amountCell := cellText(doc, selDetail+" > tr:nth-of-type(4) > td:nth-of-type(2)")
	notice.Amount, err = parseAmount(amountCell)
	if err != nil {
		return model.PaymentNotice{}, fmt.Errorf("halkbank: amount %q: %w", amountCell, err)
	}

	return notice, nil
}

// cellText joins the trimmed direct text nodes of the selected element,
// skipping nested markup. Empty when the selector resolves to nothing.
func cellText(doc *goquery.Document, selector string) string {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	var parts []string
	for n := sel.Nodes[0].FirstChild; n != nil; n = n.NextSibling {
		if n.Type != html.TextNode {
			continue
		}
		if t := strings.TrimSpace(n.Data); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// parseAmount takes the token before the first space of the amount cell
// ("1.150,50 TL") and reads it with Turkish separators.
func parseAmount(cell string) (decimal.Decimal, error) {
	token := strings.SplitN(cell, " ", 2)[0]
	token = strings.ReplaceAll(token, ".", "")
	token = strings.ReplaceAll(token, ",", ".")
	return decimal.NewFromString(token)
}
