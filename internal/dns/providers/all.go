// Package providers imports all DNS provider packages to trigger their init() registration.
package providers

import (
	_ "github.com/lscsde/aks-dns-operator/internal/dns/azureprivate"
	_ "github.com/lscsde/aks-dns-operator/internal/dns/memory"
)
