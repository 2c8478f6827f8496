package config

type Config struct {
	// recipient side of the generated transfer request
	RecipientName string
	RecipientIBAN string
	BankCode      string
	Dynamic       bool
	ReferenceNo   string

	PaymentDescription string
	DescriptionText    string

	AdditionalFee           float64
	AdditionalFeePercentage bool
	DisplayOrder            int
}
