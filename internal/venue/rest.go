package venue

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-migration-sniper/internal/custody"
	"solana-migration-sniper/internal/domain"
)

// RESTAdapter talks to a launch platform's trade API. Both supported
// platforms expose the same shape: a token catalog, a per-token migration
// endpoint and a trade endpoint returning an unsigned transaction that the
// custody signer signs and submits.
type RESTAdapter struct {
	platform domain.Platform
	api      *apiClient
	signer   custody.Signer
	log      zerolog.Logger
}

// Compile-time interface check.
var _ Adapter = (*RESTAdapter)(nil)

// NewPumpFun creates the pump.fun adapter.
func NewPumpFun(baseURL string, signer custody.Signer, logger zerolog.Logger, opts ...APIOption) *RESTAdapter {
	return newRESTAdapter(domain.PlatformPumpFun, baseURL, signer, logger, opts...)
}

// NewRaydium creates the Raydium adapter.
func NewRaydium(baseURL string, signer custody.Signer, logger zerolog.Logger, opts ...APIOption) *RESTAdapter {
	return newRESTAdapter(domain.PlatformRaydium, baseURL, signer, logger, opts...)
}

func newRESTAdapter(platform domain.Platform, baseURL string, signer custody.Signer, logger zerolog.Logger, opts ...APIOption) *RESTAdapter {
	return &RESTAdapter{
		platform: platform,
		api:      newAPIClient(baseURL, opts...),
		signer:   signer,
		log:      logger.With().Str("venue", string(platform)).Logger(),
	}
}

// Platform identifies the venue.
func (a *RESTAdapter) Platform() domain.Platform { return a.platform }

type newTokenEntry struct {
	Mint   string `json:"mint"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// ListNewTokens fetches the platform's recent listings.
func (a *RESTAdapter) ListNewTokens(ctx context.Context) ([]NewToken, error) {
	var entries []newTokenEntry
	if err := a.api.getJSON(ctx, "/tokens/new", &entries); err != nil {
		return nil, fmt.Errorf("list new tokens: %w", err)
	}

	tokens := make([]NewToken, 0, len(entries))
	for _, e := range entries {
		tokens = append(tokens, NewToken{Address: e.Mint, Name: e.Name, Symbol: e.Symbol})
	}
	return tokens, nil
}

type tokenStatus struct {
	MigrationPercentage *float64 `json:"migrationPercentage"`
}

// MigrationStatus returns the venue-reported migration percentage.
func (a *RESTAdapter) MigrationStatus(ctx context.Context, tokenAddress string) (float64, error) {
	var status tokenStatus
	if err := a.api.getJSON(ctx, "/tokens/"+tokenAddress, &status); err != nil {
		return 0, fmt.Errorf("migration status for %s: %w", tokenAddress, err)
	}
	if status.MigrationPercentage == nil {
		return 0, fmt.Errorf("migration status for %s: percentage missing", tokenAddress)
	}
	return *status.MigrationPercentage, nil
}

// tradeRequest is the platform trade endpoint payload. PublicKey carries
// the walletRef; the platform never sees key material.
type tradeRequest struct {
	Action      string `json:"action"`
	Mint        string `json:"mint"`
	PublicKey   string `json:"publicKey"`
	AmountSOL   string `json:"amountSol,omitempty"`
	TokenAmount string `json:"tokenAmount,omitempty"`
	MinPrice    string `json:"minPrice,omitempty"`
}

// tradeResponse carries the unsigned transaction plus the quoted fill.
type tradeResponse struct {
	Transaction string          `json:"transaction"` // base64 unsigned tx
	Price       decimal.Decimal `json:"price"`
	TokenAmount decimal.Decimal `json:"tokenAmount"`
	SOLAmount   decimal.Decimal `json:"solAmount"`
	Error       string          `json:"error,omitempty"`
}

// ExecuteBuy attempts a market buy.
func (a *RESTAdapter) ExecuteBuy(ctx context.Context, req BuyRequest) (TradeResult, error) {
	if req.TokenAddress == "" || !req.AmountSOL.IsPositive() {
		return TradeResult{}, fmt.Errorf("invalid buy request for %q", req.TokenAddress)
	}

	return a.trade(ctx, req.WalletRef, tradeRequest{
		Action:    "buy",
		Mint:      req.TokenAddress,
		PublicKey: req.WalletRef,
		AmountSOL: req.AmountSOL.String(),
	})
}

// ExecuteSell attempts a disposal. When the request carries a profit floor
// the venue is asked for a minimum fill price derived from the entry.
func (a *RESTAdapter) ExecuteSell(ctx context.Context, req SellRequest) (TradeResult, error) {
	if req.TokenAddress == "" || !req.TokenAmount.IsPositive() {
		return TradeResult{}, fmt.Errorf("invalid sell request for %q", req.TokenAddress)
	}

	tr := tradeRequest{
		Action:      "sell",
		Mint:        req.TokenAddress,
		PublicKey:   req.WalletRef,
		TokenAmount: req.TokenAmount.String(),
	}
	if req.MinProfitPct != nil && req.PurchasePrice.IsPositive() {
		floor := decimal.NewFromInt(100).Add(*req.MinProfitPct).Div(decimal.NewFromInt(100))
		tr.MinPrice = req.PurchasePrice.Mul(floor).String()
	}

	return a.trade(ctx, req.WalletRef, tr)
}

func (a *RESTAdapter) trade(ctx context.Context, walletRef string, tr tradeRequest) (TradeResult, error) {
	var resp tradeResponse
	if err := a.api.postJSON(ctx, "/trade", tr, &resp); err != nil {
		if errors.Is(err, context.Canceled) {
			return TradeResult{}, err
		}

		var se *statusError
		if errors.As(err, &se) && se.clientError() {
			a.log.Warn().Str("mint", tr.Mint).Str("action", tr.Action).
				Int("status", se.StatusCode).Msg("trade rejected")
			return Rejected(se.Body), nil
		}

		a.log.Warn().Str("mint", tr.Mint).Str("action", tr.Action).
			Err(err).Msg("trade indeterminate")
		return classifyTransport(err), nil
	}

	if resp.Error != "" {
		return Rejected(resp.Error), nil
	}

	rawTx, err := base64.StdEncoding.DecodeString(resp.Transaction)
	if err != nil {
		return TradeResult{}, fmt.Errorf("decode transaction: %w", err)
	}

	signature, err := a.signer.SignAndSubmit(ctx, walletRef, rawTx)
	if err != nil {
		if errors.Is(err, custody.ErrUnknownWallet) {
			return TradeResult{}, err
		}
		// Submission failure after signing is the canonical indeterminate
		// case: the transaction may still land.
		a.log.Warn().Str("mint", tr.Mint).Str("action", tr.Action).
			Err(err).Msg("submit indeterminate")
		return Unavailable(err.Error()), nil
	}

	a.log.Info().Str("mint", tr.Mint).Str("action", tr.Action).
		Str("signature", signature).Str("price", resp.Price.String()).
		Msg("trade executed")

	return Success(domain.Fill{
		Price:       resp.Price,
		TokenAmount: resp.TokenAmount,
		SOLAmount:   resp.SOLAmount,
		Signature:   signature,
		ExecutedAt:  now().UTC(),
	}), nil
}
