package mangrove

import "github.com/alanyoungcy/kandelwatch/internal/platform/evm"

const kandelABIJSON = `[
	{"type":"function","name":"BASE","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"QUOTE","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"TICK_SPACING","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"MGV","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"params","stateMutability":"view","inputs":[],"outputs":[
		{"name":"gasprice","type":"uint32"},
		{"name":"gasreq","type":"uint24"},
		{"name":"stepSize","type":"uint32"},
		{"name":"pricePoints","type":"uint32"}
	]},
	{"type":"function","name":"offerIdOfIndex","stateMutability":"view","inputs":[
		{"name":"ba","type":"uint8"},
		{"name":"index","type":"uint256"}
	],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"reserveBalance","stateMutability":"view","inputs":[
		{"name":"ba","type":"uint8"}
	],"outputs":[{"name":"","type":"uint256"}]}
]`

const mangroveABIJSON = `[
	{"type":"function","name":"offers","stateMutability":"view","inputs":[
		{"name":"olKey","type":"tuple","components":[
			{"name":"outbound_tkn","type":"address"},
			{"name":"inbound_tkn","type":"address"},
			{"name":"tickSpacing","type":"uint256"}
		]},
		{"name":"offerId","type":"uint256"}
	],"outputs":[{"name":"","type":"uint256"}]}
]`

const erc20ABIJSON = `[
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

var (
	kandelABI   = evm.MustParseABI(kandelABIJSON)
	mangroveABI = evm.MustParseABI(mangroveABIJSON)
	erc20ABI    = evm.MustParseABI(erc20ABIJSON)
)
