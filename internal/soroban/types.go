package soroban

// LedgerEntry is one entry of a getLedgerEntries response.
type LedgerEntry struct {
	Key                string  `json:"key"`
	XDR                string  `json:"xdr"`
	LastModifiedLedger uint32  `json:"lastModifiedLedgerSeq"`
	LiveUntilLedger    *uint32 `json:"liveUntilLedgerSeq,omitempty"`
}

// LedgerEntriesResult is the getLedgerEntries response.
type LedgerEntriesResult struct {
	Entries      []LedgerEntry `json:"entries"`
	LatestLedger uint32        `json:"latestLedger"`
}

// SimulateHostFunctionResult carries the return value and auth of one invocation.
type SimulateHostFunctionResult struct {
	Auth []string `json:"auth"`
	XDR  string   `json:"xdr"`
}

// RestorePreamble is present when the footprint touches archived entries.
type RestorePreamble struct {
	TransactionData string `json:"transactionData"`
	MinResourceFee  int64  `json:"minResourceFee,string"`
}

// SimulateResult is the simulateTransaction response.
type SimulateResult struct {
	TransactionData string                       `json:"transactionData,omitempty"`
	MinResourceFee  int64                        `json:"minResourceFee,string,omitempty"`
	Results         []SimulateHostFunctionResult `json:"results,omitempty"`
	Events          []string                     `json:"events,omitempty"`
	RestorePreamble *RestorePreamble             `json:"restorePreamble,omitempty"`
	Error           string                       `json:"error,omitempty"`
	LatestLedger    uint32                       `json:"latestLedger"`
}

// Send statuses.
const (
	SendPending       = "PENDING"
	SendDuplicate     = "DUPLICATE"
	SendTryAgainLater = "TRY_AGAIN_LATER"
	SendError         = "ERROR"
)

// SendResult is the sendTransaction response.
type SendResult struct {
	Status              string   `json:"status"`
	Hash                string   `json:"hash"`
	LatestLedger        uint32   `json:"latestLedger"`
	ErrorResultXDR      string   `json:"errorResultXdr,omitempty"`
	DiagnosticEventsXDR []string `json:"diagnosticEventsXdr,omitempty"`
}

// Transaction statuses.
const (
	TxSuccess  = "SUCCESS"
	TxFailed   = "FAILED"
	TxNotFound = "NOT_FOUND"
)

// TransactionResult is the getTransaction response.
type TransactionResult struct {
	Status              string   `json:"status"`
	Ledger              uint32   `json:"ledger,omitempty"`
	LatestLedger        uint32   `json:"latestLedger"`
	ResultXDR           string   `json:"resultXdr,omitempty"`
	DiagnosticEventsXDR []string `json:"diagnosticEventsXdr,omitempty"`
}

// LatestLedger is the getLatestLedger response.
type LatestLedger struct {
	ID              string `json:"id"`
	ProtocolVersion uint32 `json:"protocolVersion"`
	Sequence        uint32 `json:"sequence"`
}

// NetworkInfo is the getNetwork response.
type NetworkInfo struct {
	FriendbotURL    string `json:"friendbotUrl,omitempty"`
	Passphrase      string `json:"passphrase"`
	ProtocolVersion uint32 `json:"protocolVersion"`
}
