package databases

// Stores bundles every collection the api works with
type Stores struct {
	Issues           IssueDatabase
	Reports          ReportDatabase
	Events           ReputationEventDatabase
	Communities      CommunityDatabase
	Users            UserDatabase
	Notifications    NotificationDatabase
	Verifications    VerificationDatabase
	WorkOrders       WorkOrderDatabase
	Inspections      InspectionDatabase
	ResourceRequests ResourceRequestDatabase
	Locks            SchedulerLockDatabase
	Tx               Transactor
}

// NewStores builds the mongo backed stores on db
func NewStores(db DatabaseHelper) Stores {
	return Stores{
		Issues:           NewIssueDatabase(db),
		Reports:          NewReportDatabase(db),
		Events:           NewReputationEventDatabase(db),
		Communities:      NewCommunityDatabase(db),
		Users:            NewUserDatabase(db),
		Notifications:    NewNotificationDatabase(db),
		Verifications:    NewVerificationDatabase(db),
		WorkOrders:       NewWorkOrderDatabase(db),
		Inspections:      NewInspectionDatabase(db),
		ResourceRequests: NewResourceRequestDatabase(db),
		Locks:            NewSchedulerLockDatabase(db),
		Tx:               NewTransactor(db),
	}
}
