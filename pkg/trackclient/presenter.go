package trackclient

import (
	"errors"
	"sync"
	"time"

	"github.com/shoply/tracking/internal/domain"
)

// progressSteps maps each forward status to its progress-bar value.
var progressSteps = map[domain.Status]int{
	domain.StatusPending:    25,
	domain.StatusProcessing: 50,
	domain.StatusShipped:    75,
	domain.StatusDelivered:  100,
}

// ProgressFor returns the progress value for a status, or 0 for statuses
// outside the forward path.
func ProgressFor(status domain.Status) int {
	return progressSteps[status]
}

// ProgressView is what the UI renders: a 4-step progress value plus the
// opportunistic extras from the last status update. After the transport
// gives up, Unavailable is set and the last-known fields are kept so the
// view degrades instead of going blank.
type ProgressView struct {
	OrderID           string
	Status            domain.Status
	Progress          int
	Location          *domain.Location
	EstimatedDelivery *time.Time
	LastUpdated       time.Time
	Cancelled         bool
	Unavailable       bool
}

// Presenter subscribes to one order's updates and maintains the progress
// view for it. Stop releases every listener; nothing outlives the presenter.
type Presenter struct {
	client  *Client
	orderID string

	mu       sync.Mutex
	view     ProgressView
	onChange func(ProgressView)

	removeStatus func()
	removeError  func()
}

func NewPresenter(client *Client, orderID string, onChange func(ProgressView)) *Presenter {
	return &Presenter{
		client:   client,
		orderID:  orderID,
		view:     ProgressView{OrderID: orderID},
		onChange: onChange,
	}
}

// Start subscribes for updates. Call Stop when the view is torn down.
func (p *Presenter) Start() {
	p.removeError = p.client.OnError(p.handleError)
	p.removeStatus = p.client.Subscribe(p.orderID, p.handleStatus)
}

// Stop unsubscribes the presenter's listeners.
func (p *Presenter) Stop() {
	if p.removeStatus != nil {
		p.removeStatus()
		p.removeStatus = nil
	}
	if p.removeError != nil {
		p.removeError()
		p.removeError = nil
	}
	p.client.Unsubscribe(p.orderID)
}

// View returns the current progress view.
func (p *Presenter) View() ProgressView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

func (p *Presenter) handleStatus(status domain.OrderStatus) {
	p.mu.Lock()
	p.view.Status = status.Status
	p.view.Location = status.Location
	p.view.EstimatedDelivery = status.EstimatedDelivery
	p.view.LastUpdated = status.LastUpdated
	p.view.Unavailable = false

	if status.Status == domain.StatusCancelled {
		// Freeze the bar where it was and flag the cancellation.
		p.view.Cancelled = true
	} else {
		p.view.Cancelled = false
		p.view.Progress = ProgressFor(status.Status)
	}

	view := p.view
	p.mu.Unlock()

	p.notify(view)
}

func (p *Presenter) handleError(err error) {
	if !errors.Is(err, ErrRetriesExhausted) {
		return
	}

	p.mu.Lock()
	p.view.Unavailable = true
	view := p.view
	p.mu.Unlock()

	p.notify(view)
}

func (p *Presenter) notify(view ProgressView) {
	if p.onChange != nil {
		p.onChange(view)
	}
}
