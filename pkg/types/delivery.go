package types

// ExportArtifact describes a generated export (text, csv, pdf) of delivered codes.
type ExportArtifact struct {
	Format   string `json:"format"`
	FileName string `json:"file_name"`
	URL      string `json:"url,omitempty"`
	Content  string `json:"content,omitempty"`
}

// DeliveryCode is one issued unit: a serial and an optional PIN.
type DeliveryCode struct {
	ProductID string `json:"product_id"`
	Serial    string `json:"serial"`
	PIN       string `json:"pin,omitempty"`
}

// MaskedCode is the placeholder shown while codes are withheld.
const MaskedCode = "****"

// Masked returns a copy with the secret parts hidden.
func (c DeliveryCode) Masked() DeliveryCode {
	masked := DeliveryCode{ProductID: c.ProductID, Serial: MaskedCode}
	if c.PIN != "" {
		masked.PIN = MaskedCode
	}
	return masked
}
