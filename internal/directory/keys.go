package directory

import "strings"

var keyReplacer = strings.NewReplacer("@", "_", ".", "_")

// DeriveKey maps an email address to its canonical document key by replacing
// every '@' and '.' with '_', e.g. a.b@x.com -> a_b_x_com. The email is not
// lowercased, so differently-cased spellings of one address derive different
// keys. There is no inverse; the email always travels inside the record.
func DeriveKey(email string) string {
	return keyReplacer.Replace(email)
}
