package broker

// LedgerABI is the subset of the compute ledger contract the client uses.
const LedgerABI = `[
	{"type":"error","name":"LedgerNotExists","inputs":[{"name":"user","type":"address"}]},
	{"type":"error","name":"InsufficientBalance","inputs":[{"name":"user","type":"address"}]},
	{"type":"function","name":"getLedger","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"}],
	 "outputs":[{"name":"owner","type":"address"},{"name":"totalBalance","type":"uint256"},{"name":"lockedBalance","type":"uint256"}]},
	{"type":"function","name":"addLedger","stateMutability":"payable",
	 "inputs":[{"name":"additionalInfo","type":"string"}],"outputs":[]},
	{"type":"function","name":"depositFund","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"transferFund","stateMutability":"nonpayable",
	 "inputs":[{"name":"provider","type":"address"},{"name":"serviceType","type":"string"},{"name":"amount","type":"uint256"}],
	 "outputs":[]}
]`

// ServingABI is the subset of the inference serving contract the client uses.
const ServingABI = `[
	{"type":"error","name":"ServiceNotExist","inputs":[{"name":"provider","type":"address"}]},
	{"type":"function","name":"getAllServices","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"services","type":"tuple[]","components":[
		{"name":"provider","type":"address"},
		{"name":"serviceType","type":"string"},
		{"name":"url","type":"string"},
		{"name":"inputPrice","type":"uint256"},
		{"name":"outputPrice","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"model","type":"string"},
		{"name":"verifiability","type":"string"}]}]},
	{"type":"function","name":"getService","stateMutability":"view",
	 "inputs":[{"name":"provider","type":"address"}],
	 "outputs":[{"name":"service","type":"tuple","components":[
		{"name":"provider","type":"address"},
		{"name":"serviceType","type":"string"},
		{"name":"url","type":"string"},
		{"name":"inputPrice","type":"uint256"},
		{"name":"outputPrice","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"model","type":"string"},
		{"name":"verifiability","type":"string"}]}]},
	{"type":"function","name":"isAcknowledged","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"},{"name":"provider","type":"address"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"acknowledgeProviderSigner","stateMutability":"nonpayable",
	 "inputs":[{"name":"provider","type":"address"}],"outputs":[]}
]`
