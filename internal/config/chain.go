package config

import "strings"

// Chain holds the fixed contract addresses for the target network.
type Chain struct {
	ID              int64
	Name            string
	BaseToken       string // wrapped native asset
	BaseSymbol      string
	Factory         string
	Multicall3      string
	PairCreatedSig  string
	DeadAddress     string
	PriceSymbol     string // exchange ticker symbol for the base asset
	Established     map[string]string
	DefaultLockers  []string
	DefaultRPCURLs  []string
	DefaultWSURL    string
	DefaultExplorer string
}

// BSC is the BNB Smart Chain mainnet profile.
var BSC = Chain{
	ID:             56,
	Name:           "bsc",
	BaseToken:      "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c",
	BaseSymbol:     "WBNB",
	Factory:        "0xca143ce32fe78f1f7019d7d551a6402fc5350c73",
	Multicall3:     "0xca11bde05977b3631167028862be2a173976ca11",
	PairCreatedSig: "0x0d3648bd0f6ba80134a33ba9275ac585d9d315f0ad8355cddefde31afa28d0e9",
	DeadAddress:    "0x000000000000000000000000000000000000dead",
	PriceSymbol:    "BNBUSDT",
	Established: map[string]string{
		"0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82": "CAKE",
		"0x7083609fce4d1d8dc0c979aab8c869ea2c873402": "DOT",
		"0x7950865a9140cb519342433146ed5b40c6f210f7": "BAND",
		"0x3ee2200efb3400fabb9aacf31297cbdd1d435d47": "ADA",
		"0xba2ae424d960c26247dd6c32edc70b295c744c43": "DOGE",
		"0x2170ed0880ac9a755fd29b2688956bd959f933f8": "ETH",
		"0x1d2f0da169ceb9fc7b3144628db156f3f6c60dbe": "XRP",
		"0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d": "USDC",
		"0x55d398326f99059ff775485246999027b3197955": "USDT",
		"0xe9e7cea3dedca5984780bafc599bd69add087d56": "BUSD",
		"0x1af3f329e8be154074d8769d1ffa4ee058b1dbc3": "DAI",
		"0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c": "WBNB",
	},
	DefaultLockers: []string{
		"0x407993575c91ce7643a4d4ccacc9a98c36ee1bbe", // PinkLock v2
		"0x0000000000000000000000000000000000000000",
	},
	DefaultRPCURLs: []string{
		"https://bsc-dataseed1.binance.org",
		"https://bsc-dataseed2.binance.org",
		"https://bsc-dataseed3.binance.org",
		"https://bsc-dataseed4.binance.org",
		"https://bsc.publicnode.com",
		"https://endpoints.omniatech.io/v1/bsc/mainnet/public",
		"https://rpc.ankr.com/bsc",
	},
	DefaultWSURL:    "wss://bsc.publicnode.com",
	DefaultExplorer: "https://api.bscscan.com/api",
}

// IsEstablished reports whether addr is on the exclusion list.
func (c Chain) IsEstablished(addr string) bool {
	_, ok := c.Established[strings.ToLower(addr)]
	return ok
}

// IsBase reports whether addr is the wrapped native asset.
func (c Chain) IsBase(addr string) bool {
	return strings.EqualFold(addr, c.BaseToken)
}
