package log

// Common field names for structured logging
const (
	FieldComponent       = "component"
	FieldError           = "error"
	FieldOperation       = "operation"
	FieldUserID          = "user_id"
	FieldBudgetID        = "budget_id"
	FieldBudgetType      = "budget_type"
	FieldExpenseID       = "expense_id"
	FieldReimbursementID = "reimbursement_id"
	FieldAmountCents     = "amount_cents"
	FieldMonth           = "month"
	FieldYear            = "year"
	FieldDrifted         = "drifted"
	FieldRepaired        = "repaired"
	FieldQueue           = "queue"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentReconcile = "reconcile"
	ComponentNotify    = "notify"
)
