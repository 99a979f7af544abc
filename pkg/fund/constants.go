package fund

const (
	OperationRegisterMember = "register_member"
	OperationDeleteMember   = "delete_member"
	OperationRecordDeposit  = "record_deposit"
	OperationUpdateDeposit  = "update_deposit"
	OperationDeleteDeposit  = "delete_deposit"
	OperationRecordMeal     = "record_meal"
	OperationUpdateMeal     = "update_meal"
	OperationDeleteMeal     = "delete_meal"
	OperationPostNotice     = "post_notice"
	OperationDeleteNotice   = "delete_notice"

	OperationStatusOK    = "ok"
	OperationStatusError = "error"

	settlementNoteFormat = "[auto-settlement] meal #%d prepaid reimbursement (guests excluded)"
)
