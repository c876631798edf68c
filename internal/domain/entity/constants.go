package entity

// Application type tags stored in the transaction and objection tables
const (
	TypeLicenseApplication  = "licenseapplication"
	TypeHologramRequest     = "hologramrequest"
	TypeHologramProcurement = "hologramprocurement"
	TypeENACancellation     = "enacancellation"
	TypeENARevalidation     = "enarevalidation"
	TypeTransitPermit       = "transitpermit"
)

// Typed hook flags exposed by some application types
const (
	FlagFeeCalculated  = "is_fee_calculated"
	FlagLicenseFeePaid = "is_license_fee_paid"
)

// Payload keys written by hooks
const (
	FieldFeeAmount = "fee_amount"
)
