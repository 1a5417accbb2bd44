package orders

import "strconv"

const (
	TopicCustomerLifecycle  = "planning.customer.lifecycle"
	TopicWarehouseLifecycle = "planning.warehouse.lifecycle"
	TopicStockAdjusted      = "planning.warehouse.stock.adjusted"
	TopicOrderRequested     = "order.requested"
	TopicOrderFulfilled     = "order.fulfilled"
	TopicOrderRejected      = "order.rejected"
)

// PartitionKey keeps every event of one aggregate on one partition.
func PartitionKey(id int64) []byte { return []byte(strconv.FormatInt(id, 10)) }
