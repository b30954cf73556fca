package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Core event names
const (
	NameInvoiceCreated      Name = "invoice.created"
	NameInvoiceSent         Name = "invoice.sent"
	NameInvoicePaid         Name = "invoice.paid"
	NameInvoiceVoided       Name = "invoice.voided"
	NamePaymentReceived     Name = "payment.received"
	NamePosOrderCompleted   Name = "pos.order.completed"
	NamePosSessionOpened    Name = "pos.session.opened"
	NamePosSessionClosed    Name = "pos.session.closed"
	NameCustomerCreated     Name = "customer.created"
	NameCustomerUpdated     Name = "customer.updated"
	NameProductCreated      Name = "product.created"
	NameProductUpdated      Name = "product.updated"
	NameEmployeeClockedIn   Name = "employee.clocked_in"
	NameEmployeeClockedOut  Name = "employee.clocked_out"
	NameExpenseCreated      Name = "expense.created"
	NamePayrollRunCompleted Name = "payroll.run.completed"
	NameJournalEntryPosted  Name = "journal.entry.posted"
	NameFiscalPeriodClosed  Name = "fiscal_period.closed"
	NameModuleActivated     Name = "module.activated"
	NameModuleDeactivated   Name = "module.deactivated"
)

var coreNames = map[Name]struct{}{
	NameInvoiceCreated:      {},
	NameInvoiceSent:         {},
	NameInvoicePaid:         {},
	NameInvoiceVoided:       {},
	NamePaymentReceived:     {},
	NamePosOrderCompleted:   {},
	NamePosSessionOpened:    {},
	NamePosSessionClosed:    {},
	NameCustomerCreated:     {},
	NameCustomerUpdated:     {},
	NameProductCreated:      {},
	NameProductUpdated:      {},
	NameEmployeeClockedIn:   {},
	NameEmployeeClockedOut:  {},
	NameExpenseCreated:      {},
	NamePayrollRunCompleted: {},
	NameJournalEntryPosted:  {},
	NameFiscalPeriodClosed:  {},
	NameModuleActivated:     {},
	NameModuleDeactivated:   {},
}

// IsCore reports whether name belongs to the closed set of core events
func IsCore(name Name) bool {
	_, ok := coreNames[name]
	return ok
}

// InvoiceCreated is emitted when an invoice is drafted
type InvoiceCreated struct {
	CompanyID  uuid.UUID       `json:"company_id"`
	InvoiceID  uuid.UUID       `json:"invoice_id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	Number     string          `json:"number"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
}

func (InvoiceCreated) EventName() Name { return NameInvoiceCreated }

// InvoiceSent is emitted when an invoice is delivered to the customer
type InvoiceSent struct {
	CompanyID uuid.UUID `json:"company_id"`
	InvoiceID uuid.UUID `json:"invoice_id"`
	SentTo    string    `json:"sent_to"`
}

func (InvoiceSent) EventName() Name { return NameInvoiceSent }

// InvoicePaid is emitted when an invoice is settled in full
type InvoicePaid struct {
	CompanyID  uuid.UUID       `json:"company_id"`
	InvoiceID  uuid.UUID       `json:"invoice_id"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	PaidAt     time.Time       `json:"paid_at"`
}

func (InvoicePaid) EventName() Name { return NameInvoicePaid }

// InvoiceVoided is emitted when an invoice is cancelled
type InvoiceVoided struct {
	CompanyID uuid.UUID `json:"company_id"`
	InvoiceID uuid.UUID `json:"invoice_id"`
	Reason    string    `json:"reason"`
}

func (InvoiceVoided) EventName() Name { return NameInvoiceVoided }

// PaymentReceived is emitted for every incoming payment. InvoiceID is uuid.Nil for unallocated payments.
type PaymentReceived struct {
	CompanyID uuid.UUID       `json:"company_id"`
	PaymentID uuid.UUID       `json:"payment_id"`
	InvoiceID uuid.UUID       `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
}

func (PaymentReceived) EventName() Name { return NamePaymentReceived }

// PosOrderCompleted is emitted when a point-of-sale order is closed
type PosOrderCompleted struct {
	CompanyID  uuid.UUID       `json:"company_id"`
	OrderID    uuid.UUID       `json:"order_id"`
	SessionID  uuid.UUID       `json:"session_id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	Total      decimal.Decimal `json:"total"`
}

func (PosOrderCompleted) EventName() Name { return NamePosOrderCompleted }

// PosSessionOpened is emitted when a register session starts
type PosSessionOpened struct {
	CompanyID   uuid.UUID       `json:"company_id"`
	SessionID   uuid.UUID       `json:"session_id"`
	OpenedBy    uuid.UUID       `json:"opened_by"`
	OpeningCash decimal.Decimal `json:"opening_cash"`
}

func (PosSessionOpened) EventName() Name { return NamePosSessionOpened }

// PosSessionClosed is emitted when a register session is reconciled
type PosSessionClosed struct {
	CompanyID    uuid.UUID       `json:"company_id"`
	SessionID    uuid.UUID       `json:"session_id"`
	ClosingCash  decimal.Decimal `json:"closing_cash"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
}

func (PosSessionClosed) EventName() Name { return NamePosSessionClosed }

// CustomerCreated is emitted when a customer is registered
type CustomerCreated struct {
	CompanyID  uuid.UUID `json:"company_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Name       string    `json:"name"`
}

func (CustomerCreated) EventName() Name { return NameCustomerCreated }

// CustomerUpdated is emitted when customer fields change
type CustomerUpdated struct {
	CompanyID  uuid.UUID `json:"company_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Fields     []string  `json:"fields"`
}

func (CustomerUpdated) EventName() Name { return NameCustomerUpdated }

// ProductCreated is emitted when a product is added to the catalog
type ProductCreated struct {
	CompanyID uuid.UUID `json:"company_id"`
	ProductID uuid.UUID `json:"product_id"`
	SKU       string    `json:"sku"`
}

func (ProductCreated) EventName() Name { return NameProductCreated }

// ProductUpdated is emitted when product fields change
type ProductUpdated struct {
	CompanyID uuid.UUID `json:"company_id"`
	ProductID uuid.UUID `json:"product_id"`
	Fields    []string  `json:"fields"`
}

func (ProductUpdated) EventName() Name { return NameProductUpdated }

// EmployeeClockedIn is emitted when an employee starts a shift
type EmployeeClockedIn struct {
	CompanyID  uuid.UUID `json:"company_id"`
	EmployeeID uuid.UUID `json:"employee_id"`
	At         time.Time `json:"at"`
}

func (EmployeeClockedIn) EventName() Name { return NameEmployeeClockedIn }

// EmployeeClockedOut is emitted when an employee ends a shift
type EmployeeClockedOut struct {
	CompanyID  uuid.UUID     `json:"company_id"`
	EmployeeID uuid.UUID     `json:"employee_id"`
	At         time.Time     `json:"at"`
	Worked     time.Duration `json:"worked"`
}

func (EmployeeClockedOut) EventName() Name { return NameEmployeeClockedOut }

// ExpenseCreated is emitted when an expense is recorded
type ExpenseCreated struct {
	CompanyID uuid.UUID       `json:"company_id"`
	ExpenseID uuid.UUID       `json:"expense_id"`
	Category  string          `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
}

func (ExpenseCreated) EventName() Name { return NameExpenseCreated }

// PayrollRunCompleted is emitted when a payroll run is finalised
type PayrollRunCompleted struct {
	CompanyID   uuid.UUID       `json:"company_id"`
	RunID       uuid.UUID       `json:"run_id"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	GrossTotal  decimal.Decimal `json:"gross_total"`
	NetTotal    decimal.Decimal `json:"net_total"`
}

func (PayrollRunCompleted) EventName() Name { return NamePayrollRunCompleted }

// JournalEntryPosted is emitted when a journal entry is posted to the ledger
type JournalEntryPosted struct {
	CompanyID uuid.UUID       `json:"company_id"`
	EntryID   uuid.UUID       `json:"entry_id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
}

func (JournalEntryPosted) EventName() Name { return NameJournalEntryPosted }

// FiscalPeriodClosed is emitted when a fiscal period is locked
type FiscalPeriodClosed struct {
	CompanyID uuid.UUID `json:"company_id"`
	PeriodID  uuid.UUID `json:"period_id"`
	ClosedAt  time.Time `json:"closed_at"`
}

func (FiscalPeriodClosed) EventName() Name { return NameFiscalPeriodClosed }

// ModuleActivated is emitted after a module is switched on for a company
type ModuleActivated struct {
	CompanyID uuid.UUID `json:"company_id"`
	ModuleID  string    `json:"module_id"`
}

func (ModuleActivated) EventName() Name { return NameModuleActivated }

// ModuleDeactivated is emitted after a module is soft-disabled for a company
type ModuleDeactivated struct {
	CompanyID uuid.UUID `json:"company_id"`
	ModuleID  string    `json:"module_id"`
}

func (ModuleDeactivated) EventName() Name { return NameModuleDeactivated }
