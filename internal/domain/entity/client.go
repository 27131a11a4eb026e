package entity

// Client destinatario (consumidor final).
type Client struct {
	ID           int64
	StoreID      int64
	Code         string // CPF o CNPJ
	Name         string
	Email        string
	ZipCode      string
	Address      string
	Number       string
	Complement   string
	Neighborhood string
	City         string
	CityCode     string
	UF           string
}
