// Package sfm reconstructs sparse 3D geometry from an ordered set of
// photographs: features are extracted and matched across adjacent
// images, relative camera poses are estimated and chained, matched
// points are triangulated into a colored point cloud, and the filtered
// cloud is optionally meshed and exported as PLY/PCD/OBJ/STL files.
//
// The pipeline is incremental two-view structure from motion. It
// performs no bundle adjustment, no loop closure, and recovers no
// absolute scale; reconstructions are correct up to a global similarity
// transform.
package sfm
