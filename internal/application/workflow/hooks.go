package workflow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
)

// Hook actions recognized in the advance context
const (
	HookSetFee            = "set_fee"
	HookConfirmLicenseFee = "confirm_license_fee"
)

// Hook is a typed side effect of advance. It runs only when the caller
// context requests its action and the application exposes its flag.
type Hook struct {
	Action string
	Flag   string
	Apply  func(app port.Application, target *entity.Stage, ctx map[string]any) error
}

// DefaultHooks returns the built-in fee hooks
func DefaultHooks() []Hook {
	return []Hook{
		{Action: HookSetFee, Flag: entity.FlagFeeCalculated, Apply: applySetFee},
		{Action: HookConfirmLicenseFee, Flag: entity.FlagLicenseFeePaid, Apply: applyConfirmLicenseFee},
	}
}

// runHooks applies every hook matching the context action. Unknown
// actions are ignored.
func runHooks(hooks []Hook, app port.Application, target *entity.Stage, ctx map[string]any) error {
	raw, ok := ctx[domainwf.KeyAction]
	if !ok || raw == nil {
		return nil
	}
	action := domainwf.Normalize(fmt.Sprint(raw))

	for _, h := range hooks {
		if domainwf.Normalize(h.Action) != action {
			continue
		}
		if _, exposed := app.Flag(h.Flag); !exposed {
			continue
		}
		if err := h.Apply(app, target, ctx); err != nil {
			return err
		}
	}
	return nil
}

// set_fee only applies when the application enters the first officer stage
const feeStage = "level_1"

func applySetFee(app port.Application, target *entity.Stage, ctx map[string]any) error {
	if target.Name != feeStage {
		return nil
	}
	if done, _ := app.Flag(entity.FlagFeeCalculated); done {
		return domainwf.Invalid(entity.FlagFeeCalculated, "fee has already been calculated")
	}

	raw, ok := ctx[entity.FieldFeeAmount]
	if !ok {
		return domainwf.Invalid(entity.FieldFeeAmount, "fee_amount is required")
	}
	amount, ok := toAmount(raw)
	if !ok || amount <= 0 {
		return domainwf.Invalid(entity.FieldFeeAmount, "fee_amount must be a positive number")
	}

	app.SetField(entity.FieldFeeAmount, amount)
	app.SetFlag(entity.FlagFeeCalculated, true)
	return nil
}

func applyConfirmLicenseFee(app port.Application, _ *entity.Stage, _ map[string]any) error {
	if paid, _ := app.Flag(entity.FlagLicenseFeePaid); paid {
		return domainwf.Invalid(entity.FlagLicenseFeePaid, "license fee has already been confirmed")
	}
	if calculated, exposed := app.Flag(entity.FlagFeeCalculated); exposed && !calculated {
		return domainwf.Invalid(entity.FlagFeeCalculated, "fee has not been calculated")
	}
	app.SetFlag(entity.FlagLicenseFeePaid, true)
	return nil
}

func toAmount(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
