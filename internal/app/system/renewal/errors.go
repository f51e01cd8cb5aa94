// internal/app/system/renewal/errors.go
package renewal

import "errors"

// ErrValidation marks requests rejected before touching storage: bad
// lengths, unknown units, empty or reserved identifiers. Handlers map it
// to 400. Store-level conditions (not found, duplicate group, exhausted or
// expired codes) keep their store sentinels.
var ErrValidation = errors.New("invalid renewal request")
