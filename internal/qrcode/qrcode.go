// Package qrcode builds the FAST person-to-person transfer payload shown
// to the payer at checkout. The payload is a flat run of tagged fields,
// each with a two-digit length prefix, closed by a CRC-16/CCITT checksum.
package qrcode

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	formatIndicator = "750210"
	typeStatic      = "010211"
	typeDynamic     = "010212"
	flowPersonal    = "100203"
	// fixed default location block
	locationField = "50340000000000000000000000000000000000"
	crcMarker     = "6304"

	timeLayout = "060102150405"
)

type Request struct {
	RecipientName string
	RecipientIBAN string
	BankCode      string
	Amount        decimal.Decimal
	Created       time.Time
	Expiry        time.Time
	Dynamic       bool
	ReferenceNo   string
}

// Generate encodes the request into the payload string. Identical inputs,
// timestamps included, produce identical output. Inputs are taken as-is:
// IBAN and bank code pass through unvalidated.
func Generate(req Request) string {
	qrType := typeStatic
	if req.Dynamic {
		qrType = typeDynamic
	}

	producer := "0204" + req.BankCode

	reference := req.ReferenceNo
	if strings.TrimSpace(reference) == "" {
		reference = randomReference()
	}

	var amountField, amountString string
	if !req.Amount.IsZero() {
		// 150.50 -> 000000015050
		amountString = fmt.Sprintf("%012s", stripSeparators(req.Amount.StringFixed(2)))
		amountField = "5412" + amountString
	}

	template := applicationTemplate(req.RecipientIBAN, req.RecipientName)
	templateField := fmt.Sprintf("61%02d%s", utf8.RuneCountInString(template), template)

	hashField := "2032" + integrityHash(reference+req.RecipientIBAN+amountString)

	body := formatIndicator + qrType + producer +
		"0312" + reference +
		"0612" + req.Created.Format(timeLayout) +
		"0712" + req.Expiry.Format(timeLayout) +
		amountField + templateField + hashField + locationField + crcMarker

	return body + checksum(body)
}

// applicationTemplate is the nested field 61 sub-object: IBAN, recipient
// name and the person-to-person flow type.
func applicationTemplate(iban, name string) string {
	return "0126" + iban +
		fmt.Sprintf("07%02d%s", utf8.RuneCountInString(name), name) +
		flowPersonal
}

// integrityHash is the first 32 hex characters of SHA-256 over the input.
func integrityHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:32]
}

func randomReference() string {
	return strconv.FormatInt(100000000000+rand.Int63n(900000000000), 10)
}

func stripSeparators(s string) string {
	return strings.NewReplacer(",", "", ".", "").Replace(s)
}

// checksum is CRC-16/CCITT, polynomial 0x1021, initial value 0xFFFF,
// computed over the payload bytes including the terminal marker.
func checksum(data string) string {
	crc := uint16(0xFFFF)
	for _, b := range []byte(data) {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return fmt.Sprintf("%04X", crc)
}
