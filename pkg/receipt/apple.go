package receipt

import (
	"strconv"
	"time"
)

// verifyReceipt status codes. Apple documents these as stable; anything not
// classified below is treated as a terminal invalid receipt.
const (
	statusOK = 0

	statusMalformedJSON      = 21000
	statusMalformedReceipt   = 21002
	statusAuthFailed         = 21003
	statusSharedSecretWrong  = 21004
	statusServerUnavailable  = 21005
	statusSubscriptionLapsed = 21006
	statusSandboxToProd      = 21007
	statusProdToSandbox      = 21008
	statusInternalError      = 21009
	statusAccountGone        = 21010
)

func isEnvironmentMismatch(status int) bool {
	return status == statusSandboxToProd || status == statusProdToSandbox
}

// isTransientStatus classifies the statuses Apple documents as "try again".
func isTransientStatus(status int) bool {
	return status == statusServerUnavailable || status == statusInternalError
}

type verifyRequest struct {
	ReceiptData            string `json:"receipt-data"`
	Password               string `json:"password,omitempty"`
	ExcludeOldTransactions bool   `json:"exclude-old-transactions"`
}

type verifyResponse struct {
	Status            int           `json:"status"`
	Environment       string        `json:"environment"`
	LatestReceiptInfo []receiptInfo `json:"latest_receipt_info"`
}

type receiptInfo struct {
	ProductID             string `json:"product_id"`
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	PurchaseDateMs        string `json:"purchase_date_ms"`
	ExpiresDateMs         string `json:"expires_date_ms"`
	IsTrialPeriod         string `json:"is_trial_period"`
	IsInIntroOfferPeriod  string `json:"is_in_intro_offer_period"`
}

// latestTransaction picks the most recent transaction by purchase date.
// Apple usually sorts latest_receipt_info ascending but does not promise it.
func latestTransaction(infos []receiptInfo) (receiptInfo, bool) {
	if len(infos) == 0 {
		return receiptInfo{}, false
	}
	latest := infos[0]
	latestMs := parseMs(latest.PurchaseDateMs)
	for _, info := range infos[1:] {
		if ms := parseMs(info.PurchaseDateMs); ms > latestMs {
			latest, latestMs = info, ms
		}
	}
	return latest, true
}

func parseMs(ms string) int64 {
	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func msToTime(ms string) time.Time {
	v := parseMs(ms)
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

func appleBool(s string) bool {
	return s == "true"
}
