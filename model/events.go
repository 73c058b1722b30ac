package model

// ModelEventKind is the closed set of events a Model fires.
type ModelEventKind string

// Model events.
const (
	ModelBeforeLoad     ModelEventKind = "beforeLoad"
	ModelAfterLoad      ModelEventKind = "afterLoad"
	ModelBeforeSave     ModelEventKind = "beforeSave"
	ModelAfterSave      ModelEventKind = "afterSave"
	ModelBeforeDestroy  ModelEventKind = "beforeDestroy"
	ModelAfterDestroy   ModelEventKind = "afterDestroy"
	ModelValidationFail ModelEventKind = "validationFail"
	ModelError          ModelEventKind = "error"
)

// ModelEvent is the payload of every Model event. Only the fields relevant to
// the kind are set.
type ModelEvent struct {
	Kind ModelEventKind
	// Query is set on beforeLoad for collection loads.
	Query *QuerySpec
	// ID is set on beforeLoad for single loads and on destroy events.
	ID any
	// Record is set on save events and on afterLoad for single loads.
	Record Record
	// Result is set on afterLoad for collection loads.
	Result *LoadResult
	// Errors is set on validationFail.
	Errors ValidationErrors
	// Response is the raw transport response on afterDestroy.
	Response any
	Err      error
}

// StoreEventKind is the closed set of events a Store fires.
type StoreEventKind string

// Store events.
const (
	StoreBeforeLoad   StoreEventKind = "beforeLoad"
	StoreLoad         StoreEventKind = "load"
	StoreLoadError    StoreEventKind = "loadError"
	StoreBeforeAdd    StoreEventKind = "beforeAdd"
	StoreAdd          StoreEventKind = "add"
	StoreBeforeRemove StoreEventKind = "beforeRemove"
	StoreRemove       StoreEventKind = "remove"
	StoreBeforeUpdate StoreEventKind = "beforeUpdate"
	StoreUpdate       StoreEventKind = "update"
	StoreDataChanged  StoreEventKind = "dataChanged"
)

// StoreEvent is the payload of every Store event.
type StoreEvent struct {
	Kind StoreEventKind
	// Params is the effective request of a load.
	Params *QuerySpec
	// Records are the arguments of add, remove and update.
	Records []Record
	// Data and Total describe the collection after a load or a mutation.
	Data  []Record
	Total int
	Raw   any
	Err   error
}

// ControllerEventKind is the closed set of events a Controller fires.
type ControllerEventKind string

// Controller events.
const (
	ActionDispatched ControllerEventKind = "actionDispatched"
	ActionFailed     ControllerEventKind = "actionFailed"
	ActionMissing    ControllerEventKind = "actionMissing"
)

// ControllerEvent is the payload of every Controller event.
type ControllerEvent struct {
	Kind   ControllerEventKind
	Action string
	Args   []any
	Result any
	Err    error
}
