package broker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/internal/model"
)

// Request header names attached to every inference call.
const (
	HeaderAddress     = "Address"
	HeaderNonce       = "Nonce"
	HeaderRequestHash = "Request-Hash"
	HeaderSignature   = "Signature"
)

// serviceRecord mirrors the serving contract's service tuple.
type serviceRecord struct {
	Provider      common.Address
	ServiceType   string
	Url           string //nolint:revive // must match the ABI component name
	InputPrice    *big.Int
	OutputPrice   *big.Int
	UpdatedAt     *big.Int
	Model         string
	Verifiability string
}

func (r serviceRecord) toModel() model.Service {
	return model.Service{
		Provider:      r.Provider.Hex(),
		ServiceType:   r.ServiceType,
		URL:           r.Url,
		Model:         r.Model,
		Verifiability: r.Verifiability,
		InputPrice:    r.InputPrice,
		OutputPrice:   r.OutputPrice,
	}
}

// ListServices returns every registered provider/model in contract order.
func (c *Client) ListServices(ctx context.Context) ([]model.Service, error) {
	out, err := c.serving.Call(ctx, "getAllServices")
	if err != nil {
		return nil, eris.Wrap(err, "broker: list services")
	}
	if len(out) == 0 {
		return nil, nil
	}

	records := *abi.ConvertType(out[0], new([]serviceRecord)).(*[]serviceRecord)
	services := make([]model.Service, 0, len(records))
	for _, r := range records {
		services = append(services, r.toModel())
	}
	return services, nil
}

func (c *Client) getService(ctx context.Context, provider common.Address) (serviceRecord, error) {
	out, err := c.serving.Call(ctx, "getService", provider)
	if err != nil {
		return serviceRecord{}, eris.Wrapf(err, "broker: get service %s", provider.Hex())
	}
	if len(out) == 0 {
		return serviceRecord{}, eris.Errorf("broker: get service %s: empty result", provider.Hex())
	}
	return *abi.ConvertType(out[0], new(serviceRecord)).(*serviceRecord), nil
}

// Acknowledge registers the provider's signer for this account. It is a
// no-op when the provider was already acknowledged.
func (c *Client) Acknowledge(ctx context.Context, provider string) error {
	addr, err := parseAddress(provider)
	if err != nil {
		return err
	}

	out, err := c.serving.Call(ctx, "isAcknowledged", c.account, addr)
	if err != nil {
		return eris.Wrapf(err, "broker: check acknowledgement of %s", addr.Hex())
	}
	if len(out) == 1 {
		if done, ok := out[0].(bool); ok && done {
			zap.L().Debug("broker: provider already acknowledged", zap.String("provider", addr.Hex()))
			return nil
		}
	}

	if _, err := c.serving.Transact(ctx, nil, "acknowledgeProviderSigner", addr); err != nil {
		return eris.Wrapf(err, "broker: acknowledge %s", addr.Hex())
	}
	return nil
}

// ServiceMetadata returns the provider's OpenAI-compatible endpoint and
// canonical model id.
func (c *Client) ServiceMetadata(ctx context.Context, provider string) (model.ServiceMetadata, error) {
	addr, err := parseAddress(provider)
	if err != nil {
		return model.ServiceMetadata{}, err
	}
	svc, err := c.getService(ctx, addr)
	if err != nil {
		return model.ServiceMetadata{}, err
	}
	if svc.Url == "" {
		return model.ServiceMetadata{}, eris.Errorf("broker: provider %s has no service url", addr.Hex())
	}
	return model.ServiceMetadata{
		Endpoint: strings.TrimRight(svc.Url, "/") + "/v1/proxy",
		Model:    svc.Model,
	}, nil
}

// RequestHeaders signs a single request. The headers are bound to content:
// Request-Hash is keccak256(content) and the signature covers provider,
// nonce and that hash.
func (c *Client) RequestHeaders(_ context.Context, provider, content string) (map[string]string, error) {
	addr, err := parseAddress(provider)
	if err != nil {
		return nil, err
	}

	nonce := uint64(c.now().UnixNano())
	reqHash := crypto.Keccak256Hash([]byte(content))

	sig, err := crypto.Sign(accounts.TextHash(signingPayload(addr, nonce, reqHash)), c.key)
	if err != nil {
		return nil, eris.Wrap(err, "broker: sign request")
	}

	return map[string]string{
		HeaderAddress:     c.account.Hex(),
		HeaderNonce:       strconv.FormatUint(nonce, 10),
		HeaderRequestHash: reqHash.Hex(),
		HeaderSignature:   hexutil.Encode(sig),
	}, nil
}

func signingPayload(provider common.Address, nonce uint64, reqHash common.Hash) []byte {
	buf := make([]byte, 0, common.AddressLength+8+common.HashLength)
	buf = append(buf, provider.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, nonce)
	buf = append(buf, reqHash.Bytes()...)
	return crypto.Keccak256(buf)
}

// RecoverRequestSigner returns the account that signed a set of request
// headers for provider.
func RecoverRequestSigner(provider string, headers map[string]string) (string, error) {
	addr, err := parseAddress(provider)
	if err != nil {
		return "", err
	}
	nonce, err := strconv.ParseUint(headers[HeaderNonce], 10, 64)
	if err != nil {
		return "", eris.Wrap(err, "broker: parse nonce")
	}
	sig, err := hexutil.Decode(headers[HeaderSignature])
	if err != nil {
		return "", eris.Wrap(err, "broker: decode signature")
	}
	reqHash := common.HexToHash(headers[HeaderRequestHash])
	pub, err := crypto.SigToPub(accounts.TextHash(signingPayload(addr, nonce, reqHash)), sig)
	if err != nil {
		return "", eris.Wrap(err, "broker: recover signer")
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

type signatureResponse struct {
	Text      string `json:"text"`
	Signature string `json:"signature"`
}

// ProcessResponse settles one completed exchange with the provider: it
// fetches the provider's signed chat record and checks that the provider
// signed it and that it commits to keccak256(content). verified is false
// when either check fails.
func (c *Client) ProcessResponse(ctx context.Context, provider, content, chatID string) (bool, error) {
	if chatID == "" {
		return false, eris.New("broker: process response: missing chat id")
	}
	meta, err := c.ServiceMetadata(ctx, provider)
	if err != nil {
		return false, err
	}

	reqURL := fmt.Sprintf("%s/signature/%s?model=%s", meta.Endpoint, url.PathEscape(chatID), url.QueryEscape(meta.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, eris.Wrap(err, "broker: create signature request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, eris.Wrap(err, "broker: fetch chat signature")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, eris.Wrap(err, "broker: read signature response")
	}
	if resp.StatusCode != http.StatusOK {
		return false, eris.Errorf("broker: signature status %d: %s", resp.StatusCode, string(body))
	}

	var sr signatureResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return false, eris.Wrap(err, "broker: unmarshal signature response")
	}

	signer, err := recoverTextSigner(sr.Text, sr.Signature)
	if err != nil {
		return false, err
	}

	verified := strings.EqualFold(signer.Hex(), provider)
	if verified && content != "" {
		verified = strings.Contains(sr.Text, crypto.Keccak256Hash([]byte(content)).Hex())
	}
	if !verified {
		zap.L().Warn("broker: chat signature did not verify",
			zap.String("provider", provider),
			zap.String("chat_id", chatID),
			zap.String("signer", signer.Hex()),
		)
	}
	return verified, nil
}

func recoverTextSigner(text, sigHex string) (common.Address, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, eris.Wrap(err, "broker: decode chat signature")
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, eris.Errorf("broker: chat signature has %d bytes", len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(text)), sig)
	if err != nil {
		return common.Address{}, eris.Wrap(err, "broker: recover chat signer")
	}
	return crypto.PubkeyToAddress(*pub), nil
}
