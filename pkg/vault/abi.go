package vault

// ABI is the subset of the Vault contract used by the backend.
const ABI = `[
  {"type":"function","name":"addFile","stateMutability":"nonpayable",
   "inputs":[{"name":"fileHash","type":"bytes32"},{"name":"category","type":"string"},{"name":"encryptedKey","type":"string"},{"name":"insightsCID","type":"bytes32"}],
   "outputs":[]},
  {"type":"function","name":"updateInsights","stateMutability":"nonpayable",
   "inputs":[{"name":"fileHash","type":"bytes32"},{"name":"category","type":"string"},{"name":"insightsCID","type":"bytes32"}],
   "outputs":[]},
  {"type":"function","name":"viewFilesByUser","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[{"name":"","type":"tuple[]","components":[
     {"name":"fileHash","type":"bytes32"},
     {"name":"category","type":"string"},
     {"name":"encryptedKey","type":"string"},
     {"name":"insightsCID","type":"bytes32"},
     {"name":"timestamp","type":"uint256"}]}]}
]`
