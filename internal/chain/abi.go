package chain

// escrowABIJSON is the read/write interface of one Bella Napoli escrow pool
// contract. getUserBet returns (amount, choice, claimed, timestamp) with
// choice encoded as true = yes.
const escrowABIJSON = `[
  {"name":"owner","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"name":"getPoolInfo","type":"function","stateMutability":"view","inputs":[],"outputs":[
    {"name":"title","type":"string"},
    {"name":"description","type":"string"},
    {"name":"category","type":"string"},
    {"name":"closingDate","type":"uint256"},
    {"name":"closingBid","type":"uint256"}
  ]},
  {"name":"getPoolStats","type":"function","stateMutability":"view","inputs":[],"outputs":[
    {"name":"totalYes","type":"uint256"},
    {"name":"totalNo","type":"uint256"},
    {"name":"totalBets","type":"uint256"},
    {"name":"bettorCount","type":"uint256"},
    {"name":"isClosed","type":"bool"},
    {"name":"winnerSet","type":"bool"},
    {"name":"winner","type":"bool"}
  ]},
  {"name":"getFeeInfo","type":"function","stateMutability":"view","inputs":[],"outputs":[
    {"name":"feeWallet","type":"address"},
    {"name":"feeBps","type":"uint256"},
    {"name":"feeCalculated","type":"bool"},
    {"name":"feeSent","type":"bool"}
  ]},
  {"name":"getRedistributionInfo","type":"function","stateMutability":"view","inputs":[],"outputs":[
    {"name":"winningPot","type":"uint256"},
    {"name":"losingPot","type":"uint256"},
    {"name":"feeAmount","type":"uint256"},
    {"name":"netLosingPot","type":"uint256"},
    {"name":"totalRedistribution","type":"uint256"}
  ]},
  {"name":"getUserBet","type":"function","stateMutability":"view","inputs":[{"name":"bettor","type":"address"}],"outputs":[
    {"name":"amount","type":"uint256"},
    {"name":"choice","type":"bool"},
    {"name":"claimed","type":"bool"},
    {"name":"timestamp","type":"uint256"}
  ]},
  {"name":"isBettingCurrentlyOpen","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
  {"name":"emergencyStop","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
  {"name":"cancelled","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
  {"name":"placeBet","type":"function","stateMutability":"payable","inputs":[{"name":"choice","type":"bool"}],"outputs":[]},
  {"name":"setWinner","type":"function","stateMutability":"nonpayable","inputs":[{"name":"winner","type":"bool"}],"outputs":[]},
  {"name":"setEmergencyStop","type":"function","stateMutability":"nonpayable","inputs":[{"name":"stopped","type":"bool"}],"outputs":[]},
  {"name":"emergencyResolve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"winner","type":"bool"},{"name":"reason","type":"string"}],"outputs":[]},
  {"name":"cancelPool","type":"function","stateMutability":"nonpayable","inputs":[{"name":"reason","type":"string"}],"outputs":[]},
  {"name":"claimRefund","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"name":"claim","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`

// factoryABIJSON is the pool factory's read interface.
const factoryABIJSON = `[
  {"name":"getAllPools","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
  {"name":"poolCount","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`
