package mcpserver

// WorkflowContract describes the board workflow that LLM consumers
// should follow when creating or moving tasks.
const WorkflowContract = `# Raido Board Workflow Contract

Every task, epic and comment managed through Raido follows these rules.

## Entity ids

- Tasks: ` + "`" + `TASK-<n>` + "`" + ` (e.g. ` + "`" + `TASK-12` + "`" + `). A task with a parent task is a subtask,
  but keeps the same id scheme.
- Epics: ` + "`" + `EPIC-<n>` + "`" + `.
- Comments: ` + "`" + `CMT-<n>` + "`" + `.

Ids are assigned by the server per project; never invent them.

## Statuses

Tasks move through: ` + "`" + `todo` + "`" + `, ` + "`" + `in_progress` + "`" + `, ` + "`" + `completed` + "`" + `, ` + "`" + `wont_fix` + "`" + `, ` + "`" + `archived` + "`" + `.
Epics use the same set without ` + "`" + `wont_fix` + "`" + `.

A new task defaults to the first status. There are no enforced transitions:
any status from the set is legal at any time.

## Priorities

Integer scale with 0 as the most urgent. The default scale has six levels:

| level | meaning  |
|-------|----------|
| 0     | Critical |
| 1     | High     |
| 2     | Medium   |
| 3     | Low      |
| 4     | Backlog  |
| 5     | Someday  |

New tasks default to level 2.

## Dependencies

` + "`" + `add_dependency(taskId, dependsOnId)` + "`" + ` records that taskId cannot start until
dependsOnId is done. The graph must stay acyclic: an edge that would create a
cycle (including a task depending on itself) is rejected. Remove the edge in
the opposite direction first if you need to flip a relationship.

## History

Every create, update and delete is recorded in an append-only audit trail.
Updates store per-field before/after values; creates and deletes store full
snapshots. Use ` + "`" + `task_history` + "`" + ` to inspect what changed and when.
`
