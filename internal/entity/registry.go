// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package entity

import "github.com/jontk/batchsched/internal/attr"

// Per-kind registries, built once. Each holds the Def set for one
// entity kind; the index constants below (JobAttr*, QueueAttr*, ...)
// are assigned by registration order, which this file fixes explicitly
// so the constants stay meaningful.
var (
	JobRegistry         = attr.NewRegistry("job")
	QueueRegistry       = attr.NewRegistry("queue")
	ServerRegistry      = attr.NewRegistry("server")
	NodeRegistry        = attr.NewRegistry("node")
	ReservationRegistry = attr.NewRegistry("reservation")
	SchedulerRegistry   = attr.NewRegistry("scheduler")
)

// Job attribute slot indices.
var (
	JobAttrName          = JobRegistry.Add(attr.NewDef("job_name", attr.TypeString, attr.UserRD|attr.UserWR))
	JobAttrOwner         = JobRegistry.Add(attr.NewDef("owner", attr.TypeString, attr.UserRD|attr.MgrWR|attr.DaemonWR))
	JobAttrQueue         = JobRegistry.Add(attr.NewDef("queue", attr.TypeString, attr.UserRD|attr.OperWR|attr.MgrWR|attr.DaemonWR))
	JobAttrState         = JobRegistry.Add(attr.NewDef("job_state", attr.TypeChar, attr.UserRD|attr.DaemonWR))
	JobAttrSubstate      = JobRegistry.Add(attr.NewDef("substate", attr.TypeLong, attr.OperRD|attr.DaemonWR))
	JobAttrResourceList  = JobRegistry.Add(attr.NewDef("Resource_List", attr.TypeResourceList, attr.UserRD|attr.UserWR))
	JobAttrPriority      = JobRegistry.Add(attr.NewDef("priority", attr.TypeLong, attr.UserRD|attr.UserWR|attr.OperWR|attr.MgrWR))
	JobAttrHoldTypes     = JobRegistry.Add(attr.NewDef("Hold_Types", attr.TypeStrArray, attr.UserRD|attr.UserWR|attr.OperWR|attr.MgrWR))
	JobAttrRerunable     = JobRegistry.Add(attr.NewDef("rerunable", attr.TypeBool, attr.UserRD|attr.UserWR))
	JobAttrCheckpoint    = JobRegistry.Add(attr.NewDef("checkpoint", attr.TypeString, attr.UserRD|attr.UserWR))
	JobAttrExecVnode     = JobRegistry.Add(attr.NewDef("exec_vnode", attr.TypeString, attr.UserRD|attr.DaemonWR))
	JobAttrExecHost      = JobRegistry.Add(attr.NewDef("exec_host", attr.TypeString, attr.UserRD|attr.DaemonWR))
	JobAttrExecutionTime = JobRegistry.Add(attr.NewDef("execution_time", attr.TypeTime, attr.UserRD|attr.UserWR))
	JobAttrCtime         = JobRegistry.Add(attr.NewDef("ctime", attr.TypeTime, attr.UserRD|attr.DaemonWR))
	JobAttrArrayID       = JobRegistry.Add(attr.NewDef("array_id", attr.TypeString, attr.UserRD|attr.DaemonWR))
	JobAttrDepend        = JobRegistry.Add(attr.NewDef("depend", attr.TypeStrArray, attr.UserRD|attr.UserWR))
	JobAttrReservation   = JobRegistry.Add(attr.NewDef("resv_ID", attr.TypeString, attr.UserRD|attr.DaemonWR))
	JobAttrExitStatus    = JobRegistry.Add(attr.NewDef("exit_status", attr.TypeLong, attr.UserRD|attr.DaemonWR))
	JobAttrRunCount      = JobRegistry.Add(attr.NewDef("run_count", attr.TypeLong, attr.OperRD|attr.DaemonWR))
)

// Queue attribute slot indices.
var (
	QueueAttrName            = QueueRegistry.Add(attr.NewDef("queue_name", attr.TypeString, attr.UserRD|attr.MgrWR))
	QueueAttrType            = QueueRegistry.Add(attr.NewDef("queue_type", attr.TypeChar, attr.UserRD|attr.MgrWR))
	QueueAttrEnabled         = QueueRegistry.Add(attr.NewDef("enabled", attr.TypeBool, attr.UserRD|attr.MgrWR|attr.OperWR))
	QueueAttrStarted         = QueueRegistry.Add(attr.NewDef("started", attr.TypeBool, attr.UserRD|attr.MgrWR|attr.OperWR))
	QueueAttrTotalJobs       = QueueRegistry.Add(attr.NewDef("total_jobs", attr.TypeLong, attr.UserRD|attr.DaemonWR))
	QueueAttrResourceDefault = QueueRegistry.Add(attr.NewDef("default_resources", attr.TypeResourceList, attr.UserRD|attr.MgrWR))
)

// Server attribute slot indices.
var (
	ServerAttrName              = ServerRegistry.Add(attr.NewDef("server_name", attr.TypeString, attr.UserRD|attr.MgrWR))
	ServerAttrState             = ServerRegistry.Add(attr.NewDef("server_state", attr.TypeLong, attr.UserRD|attr.DaemonWR))
	ServerAttrJobIDCounter      = ServerRegistry.Add(attr.NewDef("next_job_number", attr.TypeLong, attr.MgrRD|attr.DaemonWR))
	ServerAttrSchedulingEnabled = ServerRegistry.Add(attr.NewDef("scheduling", attr.TypeBool, attr.UserRD|attr.MgrWR|attr.OperWR))
	ServerAttrDefaultQueue      = ServerRegistry.Add(attr.NewDef("default_queue", attr.TypeString, attr.UserRD|attr.MgrWR))
)

// Node attribute slot indices.
var (
	NodeAttrName     = NodeRegistry.Add(attr.NewDef("node_name", attr.TypeString, attr.UserRD|attr.MgrWR))
	NodeAttrState    = NodeRegistry.Add(attr.NewDef("state", attr.TypeStrArray, attr.UserRD|attr.DaemonWR|attr.MgrWR))
	NodeAttrResAvail = NodeRegistry.Add(attr.NewDef("resources_available", attr.TypeResourceList, attr.UserRD|attr.MgrWR))
	NodeAttrResAssn  = NodeRegistry.Add(attr.NewDef("resources_assigned", attr.TypeResourceList, attr.UserRD|attr.DaemonWR))
	NodeAttrJobs     = NodeRegistry.Add(attr.NewDef("jobs", attr.TypeEntitySet, attr.UserRD|attr.DaemonWR))
)

// Reservation attribute slot indices.
var (
	ResvAttrName         = ReservationRegistry.Add(attr.NewDef("resv_name", attr.TypeString, attr.UserRD|attr.UserWR))
	ResvAttrOwner        = ReservationRegistry.Add(attr.NewDef("resv_owner", attr.TypeString, attr.UserRD|attr.DaemonWR))
	ResvAttrState        = ReservationRegistry.Add(attr.NewDef("resv_state", attr.TypeLong, attr.UserRD|attr.DaemonWR))
	ResvAttrStart        = ReservationRegistry.Add(attr.NewDef("reserve_start", attr.TypeTime, attr.UserRD|attr.UserWR))
	ResvAttrEnd          = ReservationRegistry.Add(attr.NewDef("reserve_end", attr.TypeTime, attr.UserRD|attr.UserWR))
	ResvAttrDuration     = ReservationRegistry.Add(attr.NewDef("reserve_duration", attr.TypeDuration, attr.UserRD|attr.UserWR))
	ResvAttrRRule        = ReservationRegistry.Add(attr.NewDef("reserve_rrule", attr.TypeString, attr.UserRD|attr.UserWR))
	ResvAttrTZ           = ReservationRegistry.Add(attr.NewDef("reserve_timezone", attr.TypeString, attr.UserRD|attr.UserWR))
	ResvAttrOccurrence   = ReservationRegistry.Add(attr.NewDef("occurrence_index", attr.TypeLong, attr.UserRD|attr.DaemonWR))
	ResvAttrDTStart      = ReservationRegistry.Add(attr.NewDef("reserve_dtstart", attr.TypeTime, attr.UserRD|attr.DaemonWR))
	ResvAttrResourceList = ReservationRegistry.Add(attr.NewDef("Resource_List", attr.TypeResourceList, attr.UserRD|attr.UserWR))
	ResvAttrJobs         = ReservationRegistry.Add(attr.NewDef("resv_jobs", attr.TypeEntitySet, attr.UserRD|attr.DaemonWR))
)

// Scheduler attribute slot indices.
var (
	SchedAttrName     = SchedulerRegistry.Add(attr.NewDef("sched_name", attr.TypeString, attr.MgrRD|attr.MgrWR))
	SchedAttrActive   = SchedulerRegistry.Add(attr.NewDef("scheduling", attr.TypeBool, attr.MgrRD|attr.MgrWR))
	SchedAttrCycleLen = SchedulerRegistry.Add(attr.NewDef("sched_cycle_length", attr.TypeDuration, attr.MgrRD|attr.MgrWR))
)
