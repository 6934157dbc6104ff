package errs

import (
	"regexp"
	"strconv"
	"strings"
)

var contractErrPattern = regexp.MustCompile(`Error\(Contract, #(\d+)\)`)

// ContractCodes extracts every contract error code from a host error message,
// in the order they appear.
func ContractCodes(msg string) []uint32 {
	var codes []uint32
	for _, m := range contractErrPattern.FindAllStringSubmatch(msg, -1) {
		code, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			continue
		}
		codes = append(codes, uint32(code))
	}
	return codes
}

// MissingStorage reports whether a host error says the contract read a
// storage key that does not exist.
func MissingStorage(msg string) bool {
	return strings.Contains(msg, "Error(Storage, MissingValue)")
}
