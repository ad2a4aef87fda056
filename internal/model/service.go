package model

import "math/big"

// Service describes one provider/model offering from the broker. It is a
// snapshot of a single discovery call and is never cached.
type Service struct {
	Provider      string
	ServiceType   string
	URL           string
	Model         string
	Verifiability string
	InputPrice    *big.Int
	OutputPrice   *big.Int
}

// MinFee is the per-call fee estimate: input price plus output price.
func (s Service) MinFee() *big.Int {
	return new(big.Int).Add(orZero(s.InputPrice), orZero(s.OutputPrice))
}

// ModelView is the API shape of a Service.
type ModelView struct {
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	Verifiability string `json:"verifiability"`
	MinUnits      string `json:"minUnits"`
}

// View renders the service for the models endpoint.
func (s Service) View() ModelView {
	return ModelView{
		Provider:      s.Provider,
		Model:         s.Model,
		Verifiability: s.Verifiability,
		MinUnits:      s.MinFee().String(),
	}
}

// ServiceMetadata is the serving endpoint and canonical model id of a provider.
type ServiceMetadata struct {
	Endpoint string
	Model    string
}
