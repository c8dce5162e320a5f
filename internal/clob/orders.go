package clob

import (
	"fmt"
	"math"
	"math/big"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/GoPolymarket/polysession/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// OrderSigner signs orders and credential requests for the custodial wallet.
type OrderSigner interface {
	L1Signer
	ChainID() int64
	Exchange(negRisk bool) common.Address
	SignOrder(order *signer.Order, negRisk bool) (string, error)
}

// roundConfig holds decimal places for price, size and notional per tick size.
type roundConfig struct {
	price  int32
	size   int32
	amount int32
}

var roundingByTick = []struct {
	tick float64
	cfg  roundConfig
}{
	{0.1, roundConfig{price: 1, size: 2, amount: 3}},
	{0.01, roundConfig{price: 2, size: 2, amount: 4}},
	{0.001, roundConfig{price: 3, size: 2, amount: 5}},
	{0.0001, roundConfig{price: 4, size: 2, amount: 6}},
}

func roundingFor(tick float64) (roundConfig, error) {
	for _, r := range roundingByTick {
		if math.Abs(r.tick-tick) < 1e-12 {
			return r.cfg, nil
		}
	}
	return roundConfig{}, fmt.Errorf("unsupported tick size %v", tick)
}

const usdcDecimals = 6

// Salt source; JSON numbers stay below 2^53.
var newSalt = func() int64 {
	return rand.Int64N(1 << 53)
}

// LimitOrderArgs describes a share-denominated order.
type LimitOrderArgs struct {
	TokenID    string
	Side       Side
	Size       float64
	Price      float64
	Expiration int64
	FeeRateBps int64
	Taker      string
}

// MarketOrderArgs describes a notional order. BUY amounts are collateral,
// SELL amounts are shares.
type MarketOrderArgs struct {
	TokenID    string
	Side       Side
	Amount     float64
	Price      float64
	FeeRateBps int64
}

func decimalPlaces(d decimal.Decimal) int32 {
	s := d.String()
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return int32(len(s) - i - 1)
	}
	return 0
}

func fitAmount(d decimal.Decimal, places int32) decimal.Decimal {
	if decimalPlaces(d) <= places {
		return d
	}
	d = d.RoundUp(places + 4)
	if decimalPlaces(d) > places {
		d = d.RoundDown(places)
	}
	return d
}

// limitAmounts returns maker and taker amounts in token units (before scaling).
func limitAmounts(side Side, size, price float64, rc roundConfig) (maker, taker decimal.Decimal) {
	rawPrice := decimal.NewFromFloat(price).Round(rc.price)
	shares := decimal.NewFromFloat(size).RoundDown(rc.size)
	notional := fitAmount(shares.Mul(rawPrice), rc.amount)

	if side == Buy {
		return notional, shares
	}
	return shares, notional
}

func marketAmounts(side Side, amount, price float64, rc roundConfig) (maker, taker decimal.Decimal) {
	rawPrice := decimal.NewFromFloat(price).Round(rc.price)
	maker = decimal.NewFromFloat(amount).RoundDown(rc.size)

	if side == Buy {
		return maker, fitAmount(maker.Div(rawPrice), rc.amount)
	}
	return maker, fitAmount(maker.Mul(rawPrice), rc.amount)
}

func toUnits(d decimal.Decimal) *big.Int {
	return d.Shift(usdcDecimals).Truncate(0).BigInt()
}

// orderBuilder signs orders for a proxy wallet: the proxy is the maker and the
// signing wallet is the signer.
type orderBuilder struct {
	signer OrderSigner
	maker  common.Address
}

func (b orderBuilder) buildLimit(args LimitOrderArgs, tick float64, negRisk bool) (SignedOrder, error) {
	rc, err := roundingFor(tick)
	if err != nil {
		return SignedOrder{}, err
	}
	if args.Size <= 0 {
		return SignedOrder{}, fmt.Errorf("size must be positive")
	}
	maker, taker := limitAmounts(args.Side, args.Size, args.Price, rc)
	return b.sign(args.TokenID, args.Side, maker, taker, args.Expiration, args.FeeRateBps, args.Taker, negRisk)
}

func (b orderBuilder) buildMarket(args MarketOrderArgs, tick float64, negRisk bool) (SignedOrder, error) {
	rc, err := roundingFor(tick)
	if err != nil {
		return SignedOrder{}, err
	}
	if args.Amount <= 0 {
		return SignedOrder{}, fmt.Errorf("amount must be positive")
	}
	maker, taker := marketAmounts(args.Side, args.Amount, args.Price, rc)
	return b.sign(args.TokenID, args.Side, maker, taker, 0, args.FeeRateBps, "", negRisk)
}

func (b orderBuilder) sign(tokenID string, side Side, maker, taker decimal.Decimal, expiration, feeRateBps int64, takerAddr string, negRisk bool) (SignedOrder, error) {
	token, ok := new(big.Int).SetString(strings.TrimSpace(tokenID), 10)
	if !ok || token.Sign() <= 0 {
		return SignedOrder{}, fmt.Errorf("invalid token id %q", tokenID)
	}
	if maker.Sign() <= 0 || taker.Sign() <= 0 {
		return SignedOrder{}, fmt.Errorf("order amounts round to zero")
	}
	taker0 := common.Address{}
	if takerAddr != "" {
		if !common.IsHexAddress(takerAddr) {
			return SignedOrder{}, fmt.Errorf("invalid taker address %q", takerAddr)
		}
		taker0 = common.HexToAddress(takerAddr)
	}

	sideCode := signer.SideBuy
	if side == Sell {
		sideCode = signer.SideSell
	}
	salt := newSalt()
	order := &signer.Order{
		Salt:          big.NewInt(salt),
		Maker:         b.maker,
		Signer:        b.signer.Address(),
		Taker:         taker0,
		TokenID:       token,
		MakerAmount:   toUnits(maker),
		TakerAmount:   toUnits(taker),
		Expiration:    big.NewInt(expiration),
		Nonce:         big.NewInt(0),
		FeeRateBps:    big.NewInt(feeRateBps),
		Side:          sideCode,
		SignatureType: signer.SignatureTypePolyProxy,
	}
	sig, err := b.signer.SignOrder(order, negRisk)
	if err != nil {
		return SignedOrder{}, fmt.Errorf("failed to sign order: %w", err)
	}
	if err := signer.VerifyOrderSignature(order, sig, order.Signer, b.signer.ChainID(), b.signer.Exchange(negRisk)); err != nil {
		return SignedOrder{}, fmt.Errorf("order signature check failed: %w", err)
	}

	return SignedOrder{
		Salt:          salt,
		Maker:         order.Maker.Hex(),
		Signer:        order.Signer.Hex(),
		Taker:         order.Taker.Hex(),
		TokenID:       token.String(),
		MakerAmount:   order.MakerAmount.String(),
		TakerAmount:   order.TakerAmount.String(),
		Expiration:    strconv.FormatInt(expiration, 10),
		Nonce:         "0",
		FeeRateBps:    strconv.FormatInt(feeRateBps, 10),
		Side:          side,
		SignatureType: int(order.SignatureType),
		Signature:     sig,
	}, nil
}
