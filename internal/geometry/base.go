package geometry

// BaseResolution is the reference pixel grid region geometry and anchors
// are defined in.
var BaseResolution = Size{W: 1920, H: 1080}
