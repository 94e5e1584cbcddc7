package payments

import (
	"fmt"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

// Registry maps a payment method to its gateway.
type Registry struct {
	gateways map[enums.PaymentMethod]Gateway
}

// NewRegistry indexes the provided gateways by method. Registering the same
// method twice is a wiring bug.
func NewRegistry(gateways ...Gateway) (*Registry, error) {
	r := &Registry{gateways: make(map[enums.PaymentMethod]Gateway, len(gateways))}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		method := gw.Method()
		if !method.IsValid() {
			return nil, fmt.Errorf("unknown payment method %q", method)
		}
		if _, exists := r.gateways[method]; exists {
			return nil, fmt.Errorf("gateway for %s registered twice", method)
		}
		r.gateways[method] = gw
	}
	return r, nil
}

// Gateway returns the adapter for method.
func (r *Registry) Gateway(method enums.PaymentMethod) (Gateway, error) {
	if r != nil {
		if gw, ok := r.gateways[method]; ok {
			return gw, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
		WithDetails(map[string]any{"method": method})
}

// Methods lists the registered methods.
func (r *Registry) Methods() []enums.PaymentMethod {
	out := make([]enums.PaymentMethod, 0, len(r.gateways))
	for _, candidate := range []enums.PaymentMethod{enums.PaymentMethodCOD, enums.PaymentMethodGatewayA, enums.PaymentMethodGatewayB} {
		if _, ok := r.gateways[candidate]; ok {
			out = append(out, candidate)
		}
	}
	return out
}
