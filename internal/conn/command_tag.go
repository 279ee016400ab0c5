package conn

// CommandTag is the status string ending one command, e.g. "INSERT 0 1".
type CommandTag []byte

// RowsAffected returns the number of rows affected. If the CommandTag was not
// for a row affecting command (e.g. "CREATE TABLE") then it returns 0.
func (ct CommandTag) RowsAffected() int64 {
	// Find last non-digit
	idx := -1
	for i := len(ct) - 1; i >= 0; i-- {
		if ct[i] >= '0' && ct[i] <= '9' {
			idx = i
		} else {
			break
		}
	}

	if idx == -1 {
		return 0
	}

	var n int64
	for _, b := range ct[idx:] {
		n = n*10 + int64(b-'0')
	}

	return n
}

func (ct CommandTag) String() string {
	return string(ct)
}

func (ct CommandTag) hasPrefix(prefix string) bool {
	if len(ct) < len(prefix) {
		return false
	}
	return string(ct[:len(prefix)]) == prefix
}

// Insert is true if the command tag starts with "INSERT".
func (ct CommandTag) Insert() bool {
	return ct.hasPrefix("INSERT")
}

// Update is true if the command tag starts with "UPDATE".
func (ct CommandTag) Update() bool {
	return ct.hasPrefix("UPDATE")
}

// Delete is true if the command tag starts with "DELETE".
func (ct CommandTag) Delete() bool {
	return ct.hasPrefix("DELETE")
}

// Select is true if the command tag starts with "SELECT".
func (ct CommandTag) Select() bool {
	return ct.hasPrefix("SELECT")
}

// Copy is true if the command tag starts with "COPY".
func (ct CommandTag) Copy() bool {
	return ct.hasPrefix("COPY")
}
