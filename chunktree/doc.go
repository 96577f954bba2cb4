/*
Persistent B-tree collections (sets and maps) whose nodes are content-addressed chunks.

## Terminology

container: one B-tree node. holds an ordered array of keys (and, for maps, a parallel array of values) interleaved with child identifiers. a leaf is a container whose child slots are all empty

branch: the path of containers from the root down to the node relevant to one operation. mutations edit the containers on the branch (and at most one sibling per level), and the branch then persists every touched container bottom-up and reports the new root identifier

degree: the maximum number of elements a container holds. a container which grows past the degree splits; a non-root container which drops below degree/2 elements borrows from (rotate) or merges with a sibling

## Copy-on-write

Containers are never modified once persisted. Every operation decodes fresh in-memory copies of the containers it visits; children that were loaded or rebuilt during the operation are linked by pointer (ChildRef.Node) so rotations and merges can move whole subtrees around, and only the dirty containers get re-encoded and written when the branch is updated. A mutation which fails before its branch is updated writes nothing, and a failed mutation always leaves the collection on its previous root.

## Hacking

Keys are chunk identifiers, ordered by their string form. Be careful with go slices when moving keys between containers: always copy (slices.Clone) when a slice would otherwise be shared by two containers.
*/
package chunktree
