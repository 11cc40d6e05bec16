package layout

// bankNames covers the compensation codes this ingest sees in
// practice. Unknown codes still parse with the base FEBRABAN layout.
var bankNames = map[int]string{
	1:   "BANCO DO BRASIL",
	33:  "SANTANDER",
	104: "CAIXA ECONOMICA FEDERAL",
	237: "BRADESCO",
	341: "ITAU UNIBANCO",
	422: "SAFRA",
	748: "SICREDI",
	756: "SICOOB",
}

// countsDetailsOnly lists banks whose published meaning of the CNAB
// 240 file-trailer total_registros field counts detail records only,
// instead of every line in the file.
var countsDetailsOnly = map[int]bool{
	104: true,
}

// BankName returns the registered name for a compensation code, or
// empty when the bank is not in the table.
func BankName(code int) string { return bankNames[code] }

// KnownBank reports whether the compensation code is in the table.
func KnownBank(code int) bool {
	_, ok := bankNames[code]
	return ok
}

// CountsDetailsOnly reports the bank's convention for the CNAB 240
// total_registros trailer field: true means detail lines only, false
// means every line including headers and trailers.
func CountsDetailsOnly(code int) bool { return countsDetailsOnly[code] }
