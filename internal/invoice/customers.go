// invoice/customers.go
package invoice

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/eGGnogSC/qbinvoice/pkg/qbclient"
)

const (
	customerCacheSize = 512
	customerCacheTTL  = 15 * time.Minute
)

// customerCache remembers display name lookups per company
type customerCache struct {
	lru *expirable.LRU[string, qbclient.Customer]
}

func newCustomerCache(size int, ttl time.Duration) *customerCache {
	return &customerCache{lru: expirable.NewLRU[string, qbclient.Customer](size, nil, ttl)}
}

func customerKey(companyID, name string) string {
	return companyID + "\x00" + name
}

func (c *customerCache) get(companyID, name string) (*qbclient.Customer, bool) {
	customer, ok := c.lru.Get(customerKey(companyID, name))
	if !ok {
		return nil, false
	}
	return &customer, true
}

func (c *customerCache) add(companyID, name string, customer *qbclient.Customer) {
	c.lru.Add(customerKey(companyID, name), *customer)
}
