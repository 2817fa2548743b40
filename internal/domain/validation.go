package domain

// BlockedReason is the machine-readable code of a failed validation.
type BlockedReason string

const (
	ReasonNone                         BlockedReason = ""
	ReasonUnsupportedPlatform          BlockedReason = "unsupported_platform"
	ReasonEmptyLink                    BlockedReason = "empty_link"
	ReasonRawStoreURL                  BlockedReason = "raw_store_url"
	ReasonAmazonMissingASIN            BlockedReason = "amazon_missing_asin"
	ReasonAmazonInvalidASIN            BlockedReason = "amazon_invalid_asin"
	ReasonAmazonInvalidAffiliate       BlockedReason = "amazon_invalid_affiliate"
	ReasonAwinInvalidDeeplink          BlockedReason = "awin_invalid_deeplink"
	ReasonShopeeInvalidShortlink       BlockedReason = "shopee_invalid_shortlink"
	ReasonAliExpressInvalidShortlink   BlockedReason = "aliexpress_invalid_shortlink"
	ReasonMagaluInvalidStorefront      BlockedReason = "magalu_invalid_storefront"
	ReasonMercadoLivreInvalidAffiliate BlockedReason = "mercadolivre_invalid_affiliate"
)

// ReasonPublishFailed is set by the pipeline, not the gate, once the
// publisher rejected an offer on every allowed attempt.
const ReasonPublishFailed BlockedReason = "publish_failed"

// ValidationResult is produced for every publish attempt.
type ValidationResult struct {
	IsValid       bool
	Platform      string
	Errors        []string
	BlockedReason BlockedReason
}
