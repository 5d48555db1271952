package solana

// TipAccounts are the priority-bundle tip addresses.
var TipAccounts = []string{
	"HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe",
	"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
	"ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49",
	"DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh",
	"ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt",
	"DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL",
	"3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT",
	"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
}

// PriorityBundleMarker appears in the logs of bundle-submitted transactions.
const PriorityBundleMarker = "Jito"

// PaysTip reports whether any account of tx is in tips.
func (tx *Transaction) PaysTip(tips []string) bool {
	if tx == nil || tx.Message == nil {
		return false
	}
	set := make(map[string]struct{}, len(tips))
	for _, t := range tips {
		set[t] = struct{}{}
	}
	for _, k := range tx.Message.AccountKeys {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}
