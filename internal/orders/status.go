package orders

type Status string

const (
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusRefunded   Status = "refunded"
	StatusCancelled  Status = "cancelled"
)

// validNext lists every legal move. Terminal statuses map to nothing.
var validNext = map[Status]map[Status]bool{
	StatusPaid:       {StatusProcessing: true, StatusCancelled: true, StatusRefunded: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true, StatusRefunded: true},
	StatusShipped:    {StatusDelivered: true, StatusCancelled: true, StatusRefunded: true},
	StatusDelivered:  {},
	StatusRefunded:   {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) IsValid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) IsTerminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

// AcceptsTracking reports whether a tracking number may be set in s.
func (s Status) AcceptsTracking() bool {
	return s == StatusProcessing || s == StatusShipped
}

// releasesInventory reports whether entering s gives reserved units back.
func (s Status) releasesInventory() bool {
	return s == StatusCancelled || s == StatusRefunded
}
